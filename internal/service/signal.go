package service

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/totegamma/portfolio"
)

// SignalService relays case study change events over redis pub/sub.
type SignalService struct {
	rdb *redis.Client
	log zerolog.Logger
}

func NewSignalService(redisClient *redis.Client, log zerolog.Logger) *SignalService {
	return &SignalService{
		rdb: redisClient,
		log: log.With().Str("component", "signal").Logger(),
	}
}

func (s *SignalService) Publish(ctx context.Context, event portfolio.ChangeEvent) error {
	ctx, span := tracer.Start(ctx, "Signal.Service.Publish")
	defer span.End()

	jsonstr, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "encode change event")
	}

	err = s.rdb.Publish(ctx, portfolio.ChangeChannel, jsonstr).Err()
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "publish change event")
	}

	return nil
}

// Realtime forwards change events to output until ctx is done. Each value
// received on filter replaces the set of case study ids to forward; an empty
// set forwards everything. Realtime closes output when it returns.
func (s *SignalService) Realtime(ctx context.Context, filter <-chan []string, output chan<- portfolio.ChangeEvent) {
	defer close(output)

	pubsub := s.rdb.Subscribe(ctx, portfolio.ChangeChannel)
	defer pubsub.Close()

	messages := pubsub.Channel()
	watching := map[string]bool{}

	for {
		select {
		case <-ctx.Done():
			return
		case ids, ok := <-filter:
			if !ok {
				filter = nil
				continue
			}
			watching = make(map[string]bool, len(ids))
			for _, id := range ids {
				watching[id] = true
			}
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var event portfolio.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				s.log.Warn().Err(err).Msg("dropping malformed change event")
				continue
			}
			if len(watching) > 0 && !watching[event.ID] {
				continue
			}
			select {
			case output <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}
