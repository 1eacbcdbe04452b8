package usecase

import (
	"context"
	"fmt"

	"github.com/radugaboost/message-inbox/internal/domain/inbox"
)

const (
	DefaultPendingLimit = 50
	MaxPendingLimit     = 500
)

type ListPending struct {
	reader inbox.Reader
}

func NewListPending(reader inbox.Reader) *ListPending {
	return &ListPending{reader: reader}
}

// Execute lists unprocessed messages in claim order. limit is clamped to
// [1, MaxPendingLimit]; zero or negative means DefaultPendingLimit.
func (uc *ListPending) Execute(ctx context.Context, limit int) ([]*inbox.Message, error) {
	switch {
	case limit <= 0:
		limit = DefaultPendingLimit
	case limit > MaxPendingLimit:
		limit = MaxPendingLimit
	}

	messages, err := uc.reader.ListPending(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	if messages == nil {
		messages = []*inbox.Message{}
	}
	return messages, nil
}
