package handler

import (
	"context"
	"encoding/json"

	apperrors "github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/rpc"
)

// RegisterRPC exposes ProximityService on s.
func (h *Handler) RegisterRPC(s *rpc.Server) {
	s.Register(proto.MethodSearch, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req proto.SearchRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, apperrors.Malformed("invalid search request: %v", err)
		}
		return h.Search(ctx, req.Query, req.Mode)
	})
	s.Register(proto.MethodPositions, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req proto.PositionsRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, apperrors.Malformed("invalid positions request: %v", err)
		}
		return h.Positions(req.Term, req.DocID)
	})
	s.Register(proto.MethodStats, func(ctx context.Context, raw json.RawMessage) (any, error) {
		return h.Stats()
	})
}
