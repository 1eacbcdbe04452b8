package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/radugaboost/message-inbox/internal/domain/inbox"
)

type StatsDTO struct {
	inbox.Stats
	OldestPendingAge string `json:"oldest_pending_age,omitempty"`
}

type GetStats struct {
	reader inbox.Reader
	now    func() time.Time
}

func NewGetStats(reader inbox.Reader) *GetStats {
	return &GetStats{reader: reader, now: time.Now}
}

func (uc *GetStats) Execute(ctx context.Context) (*StatsDTO, error) {
	s, err := uc.reader.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}

	dto := &StatsDTO{Stats: *s}
	if s.OldestPendingAt != nil {
		dto.OldestPendingAge = uc.now().Sub(*s.OldestPendingAt).Truncate(time.Second).String()
	}
	return dto, nil
}
