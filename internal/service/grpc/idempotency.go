package grpcsvc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const (
	idempotencyKeyHeader = "idempotency-key"
	replayedFailure      = "previous request with the same idempotency key failed"
	finishTimeout        = 5 * time.Second
)

type mutation func(ctx context.Context, userID string) (*structpb.Struct, error)

// withIdempotency выполняет изменяющий метод не более одного раза на idempotency-key.
// Хеш запроса учитывает метод, вызывающего и тело, поэтому тот же ключ
// с другим запросом отклоняется. Без репозитория ключ не требуется.
func (s *CheckoutService) withIdempotency(ctx context.Context, method string, req *structpb.Struct, run mutation) (*structpb.Struct, error) {
	userID, err := readUserID(ctx)
	if err != nil {
		return nil, err
	}
	if s.idemRepo == nil {
		return run(ctx, userID)
	}

	key, err := readIdempotencyKey(ctx)
	if err != nil {
		return nil, err
	}
	hash, err := buildIdempotencyRequestHash(FullMethod(method), userID, req)
	if err != nil {
		s.logger.WithError(err).WithField("method", method).Warn("failed to hash request for idempotency")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}

	entry := s.logger.WithFields(log.Fields{"method": method, "idempotency_key": key})
	record, err := s.idemRepo.CreateProcessing(ctx, key, hash, time.Now().UTC().Add(domain.IdempotencyTTL))
	switch {
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return nil, status.Error(codes.AlreadyExists, "idempotency key is already used with different request payload")
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		entry.WithField("status", record.Status).Debug("idempotent replay")
		return replay(record)
	case err != nil:
		entry.WithError(err).Warn("failed to reserve idempotency key")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}

	resp, runErr := run(ctx, userID)

	// Запись завершается и после отключения клиента, иначе ключ зависнет в processing.
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	if runErr != nil {
		code, body := encodeFailure(runErr)
		if retryable(code) {
			if err := s.idemRepo.Release(markCtx, key); err != nil {
				entry.WithError(err).Warn("failed to release idempotency key")
			}
			return nil, runErr
		}
		if markErr := s.idemRepo.MarkFailed(markCtx, key, body, int(code)); markErr != nil {
			entry.WithError(markErr).Warn("failed to store idempotent failure")
		}
		return nil, runErr
	}

	body, err := protojson.Marshal(resp)
	if err == nil {
		err = s.idemRepo.MarkDone(markCtx, key, body, int(codes.OK))
	}
	if err != nil {
		entry.WithError(err).Warn("failed to store idempotent response")
	}
	return resp, nil
}

// retryable отмечает временные сбои: их ответ не кэшируется, повтор с тем же ключом выполняется заново.
func retryable(code codes.Code) bool {
	switch code {
	case codes.Canceled, codes.DeadlineExceeded, codes.Aborted, codes.Unavailable, codes.ResourceExhausted, codes.Internal:
		return true
	}
	return false
}

// replay отвечает на повтор по сохранённой записи.
func replay(record domain.IdempotencyRecord) (*structpb.Struct, error) {
	switch record.Status {
	case domain.IdempotencyStatusProcessing:
		return nil, status.Error(codes.Aborted, "request with the same idempotency key is already processing")
	case domain.IdempotencyStatusFailed:
		return nil, decodeFailure(record)
	case domain.IdempotencyStatusDone:
		resp := new(structpb.Struct)
		if len(record.ResponseBody) == 0 || protojson.Unmarshal(record.ResponseBody, resp) != nil {
			return nil, status.Error(codes.Internal, "failed to decode cached idempotency response")
		}
		return resp, nil
	}
	return nil, status.Error(codes.Internal, "unknown idempotency record status")
}

// encodeFailure сохраняет gRPC-статус ошибки как {"code": n, "message": "..."}.
func encodeFailure(err error) (codes.Code, []byte) {
	st := status.Convert(err)
	code := st.Code()
	if code == codes.OK {
		code = codes.Internal
	}
	body, marshalErr := protojson.Marshal(&structpb.Struct{Fields: map[string]*structpb.Value{
		"code":    structpb.NewNumberValue(float64(code)),
		"message": structpb.NewStringValue(st.Message()),
	}})
	if marshalErr != nil {
		return code, nil
	}
	return code, body
}

// decodeFailure восстанавливает ошибку; при битом теле берёт код из HTTPStatus.
func decodeFailure(record domain.IdempotencyRecord) error {
	var cached structpb.Struct
	if len(record.ResponseBody) > 0 && protojson.Unmarshal(record.ResponseBody, &cached) == nil {
		fields := cached.GetFields()
		if code, ok := knownCode(int(fields["code"].GetNumberValue())); ok {
			msg := fields["message"].GetStringValue()
			if msg == "" {
				msg = replayedFailure
			}
			return status.Error(code, msg)
		}
	}
	if code, ok := knownCode(record.HTTPStatus); ok {
		return status.Error(code, replayedFailure)
	}
	return status.Error(codes.Internal, replayedFailure)
}

// knownCode принимает только коды ошибок gRPC, OK сюда не попадает.
func knownCode(v int) (codes.Code, bool) {
	if v <= int(codes.OK) || v > int(codes.Unauthenticated) {
		return codes.Internal, false
	}
	return codes.Code(uint32(v)), true
}

func readIdempotencyKey(ctx context.Context) (string, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	for _, v := range md.Get(idempotencyKeyHeader) {
		if key := strings.TrimSpace(v); key != "" {
			return key, nil
		}
	}
	return "", status.Error(codes.InvalidArgument, "idempotency-key metadata is required")
}

func buildIdempotencyRequestHash(method, userID string, req proto.Message) (string, error) {
	if req == nil {
		req = &structpb.Struct{}
	}
	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(req)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	for _, part := range [][]byte{[]byte(method), []byte(userID), data} {
		h.Write(part)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
