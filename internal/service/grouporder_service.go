// Package service exposes the group order engine over Connect RPC.
package service

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/grouporder/internal/auth"
	"github.com/mmynk/grouporder/internal/grouporder"
	"github.com/mmynk/grouporder/internal/middleware"
	"github.com/mmynk/grouporder/internal/models"
)

// ServiceName is the fully-qualified name of the group order service.
const ServiceName = "grouporder.v1.GroupOrderService"

const (
	CreateGroupOrderProcedure    = "/" + ServiceName + "/CreateGroupOrder"
	JoinGroupOrderProcedure      = "/" + ServiceName + "/JoinGroupOrder"
	StartSelectionProcedure      = "/" + ServiceName + "/StartSelection"
	UpdateSelectionProcedure     = "/" + ServiceName + "/UpdateSelection"
	MarkSelectionReadyProcedure  = "/" + ServiceName + "/MarkSelectionReady"
	AdvanceToReadyProcedure      = "/" + ServiceName + "/AdvanceToReady"
	ContributeBudgetProcedure    = "/" + ServiceName + "/ContributeBudget"
	GetGroupOrderStatusProcedure = "/" + ServiceName + "/GetGroupOrderStatus"
	GetSelectionsProcedure       = "/" + ServiceName + "/GetSelections"
	CloseGroupOrderProcedure     = "/" + ServiceName + "/CloseGroupOrder"
	CancelGroupOrderProcedure    = "/" + ServiceName + "/CancelGroupOrder"
	WatchGroupOrderProcedure     = "/" + ServiceName + "/WatchGroupOrder"
)

// GroupOrderService implements the Connect GroupOrderService.
// The caller is always the user named by the request's bearer token.
type GroupOrderService struct {
	engine *grouporder.Engine
}

// NewGroupOrderService creates a new GroupOrderService over engine.
func NewGroupOrderService(engine *grouporder.Engine) *GroupOrderService {
	return &GroupOrderService{engine: engine}
}

// NewGroupOrderServiceHandler builds an HTTP handler serving every
// procedure of svc. It returns the path to mount the handler on.
func NewGroupOrderServiceHandler(svc *GroupOrderService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(CreateGroupOrderProcedure, connect.NewUnaryHandler(CreateGroupOrderProcedure, svc.CreateGroupOrder, opts...))
	mux.Handle(JoinGroupOrderProcedure, connect.NewUnaryHandler(JoinGroupOrderProcedure, svc.JoinGroupOrder, opts...))
	mux.Handle(StartSelectionProcedure, connect.NewUnaryHandler(StartSelectionProcedure, svc.StartSelection, opts...))
	mux.Handle(UpdateSelectionProcedure, connect.NewUnaryHandler(UpdateSelectionProcedure, svc.UpdateSelection, opts...))
	mux.Handle(MarkSelectionReadyProcedure, connect.NewUnaryHandler(MarkSelectionReadyProcedure, svc.MarkSelectionReady, opts...))
	mux.Handle(AdvanceToReadyProcedure, connect.NewUnaryHandler(AdvanceToReadyProcedure, svc.AdvanceToReady, opts...))
	mux.Handle(ContributeBudgetProcedure, connect.NewUnaryHandler(ContributeBudgetProcedure, svc.ContributeBudget, opts...))
	mux.Handle(GetGroupOrderStatusProcedure, connect.NewUnaryHandler(GetGroupOrderStatusProcedure, svc.GetGroupOrderStatus, opts...))
	mux.Handle(GetSelectionsProcedure, connect.NewUnaryHandler(GetSelectionsProcedure, svc.GetSelections, opts...))
	mux.Handle(CloseGroupOrderProcedure, connect.NewUnaryHandler(CloseGroupOrderProcedure, svc.CloseGroupOrder, opts...))
	mux.Handle(CancelGroupOrderProcedure, connect.NewUnaryHandler(CancelGroupOrderProcedure, svc.CancelGroupOrder, opts...))
	mux.Handle(WatchGroupOrderProcedure, connect.NewServerStreamHandler(WatchGroupOrderProcedure, svc.WatchGroupOrder, opts...))

	return "/" + ServiceName + "/", mux
}

// caller returns the authenticated user, failing when the handler was
// mounted without RequireAuth.
func caller(ctx context.Context) (string, error) {
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		return "", connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
	}
	return userID, nil
}

// CreateGroupOrder opens a group order hosted by the caller.
func (s *GroupOrderService) CreateGroupOrder(ctx context.Context, req *connect.Request[CreateGroupOrderRequest]) (*connect.Response[CreateGroupOrderResponse], error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("CreateGroupOrder request received",
		"host_id", userID,
		"creator_id", req.Msg.CreatorID,
		"ttl_hours", req.Msg.TTLHours,
	)

	var target *models.Money
	if req.Msg.BudgetTarget != nil {
		t := models.Money(*req.Msg.BudgetTarget)
		target = &t
	}

	res, err := s.engine.CreateGroupOrder(ctx, grouporder.CreateRequest{
		HostID:          userID,
		CreatorID:       req.Msg.CreatorID,
		RestaurantName:  req.Msg.RestaurantName,
		Title:           req.Msg.Title,
		BudgetTarget:    target,
		DeliveryAddress: req.Msg.DeliveryAddress,
		DeliveryTime:    req.Msg.DeliveryTime,
		TTL:             time.Duration(req.Msg.TTLHours) * time.Hour,
	})
	if err != nil {
		return nil, toConnectError(CreateGroupOrderProcedure, err)
	}

	return connect.NewResponse(&CreateGroupOrderResponse{
		GroupOrder:         toGroupOrder(res.GroupOrder),
		ShareToken:         res.ShareToken,
		ShareLinkExpiresAt: res.ShareLinkExpiresAt,
	}), nil
}

// JoinGroupOrder adds the caller to a group order by token or ID.
func (s *GroupOrderService) JoinGroupOrder(ctx context.Context, req *connect.Request[JoinGroupOrderRequest]) (*connect.Response[JoinGroupOrderResponse], error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("JoinGroupOrder request received",
		"user_id", userID,
		"group_order_id", req.Msg.GroupOrderID,
		"by_token", req.Msg.Token != "",
	)

	var initial *models.Money
	if req.Msg.InitialContribution != nil {
		amount := models.Money(*req.Msg.InitialContribution)
		initial = &amount
	}

	p, err := s.engine.JoinGroupOrder(ctx, grouporder.JoinRequest{
		Token:               req.Msg.Token,
		GroupOrderID:        req.Msg.GroupOrderID,
		UserID:              userID,
		IdempotencyKey:      req.Msg.IdempotencyKey,
		InitialContribution: initial,
	})
	if err != nil {
		return nil, toConnectError(JoinGroupOrderProcedure, err)
	}

	return connect.NewResponse(&JoinGroupOrderResponse{
		GroupOrderID: p.GroupOrderID,
		Participant:  toParticipant(p),
	}), nil
}

// StartSelection moves the caller's group order from open to selecting.
func (s *GroupOrderService) StartSelection(ctx context.Context, req *connect.Request[StartSelectionRequest]) (*connect.Response[StartSelectionResponse], error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("StartSelection request received", "group_order_id", req.Msg.GroupOrderID, "host_id", userID)

	order, err := s.engine.StartSelection(ctx, req.Msg.GroupOrderID, userID)
	if err != nil {
		return nil, toConnectError(StartSelectionProcedure, err)
	}
	return connect.NewResponse(&StartSelectionResponse{GroupOrder: toGroupOrder(order)}), nil
}

// UpdateSelection replaces the caller's items.
func (s *GroupOrderService) UpdateSelection(ctx context.Context, req *connect.Request[UpdateSelectionRequest]) (*connect.Response[UpdateSelectionResponse], error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("UpdateSelection request received",
		"group_order_id", req.Msg.GroupOrderID,
		"participant_id", userID,
		"items_count", len(req.Msg.Items),
	)

	sel, err := s.engine.UpdateSelection(ctx, req.Msg.GroupOrderID, userID, userID, fromItems(req.Msg.Items))
	if err != nil {
		return nil, toConnectError(UpdateSelectionProcedure, err)
	}
	return connect.NewResponse(&UpdateSelectionResponse{Selection: toSelection(sel)}), nil
}

// MarkSelectionReady flags the caller's selection final.
func (s *GroupOrderService) MarkSelectionReady(ctx context.Context, req *connect.Request[MarkSelectionReadyRequest]) (*connect.Response[MarkSelectionReadyResponse], error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("MarkSelectionReady request received", "group_order_id", req.Msg.GroupOrderID, "participant_id", userID)

	advanced, err := s.engine.MarkSelectionReady(ctx, req.Msg.GroupOrderID, userID, userID)
	if err != nil {
		return nil, toConnectError(MarkSelectionReadyProcedure, err)
	}
	return connect.NewResponse(&MarkSelectionReadyResponse{Advanced: advanced}), nil
}

// AdvanceToReady ends the selection phase on the host's request.
func (s *GroupOrderService) AdvanceToReady(ctx context.Context, req *connect.Request[AdvanceToReadyRequest]) (*connect.Response[AdvanceToReadyResponse], error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("AdvanceToReady request received",
		"group_order_id", req.Msg.GroupOrderID,
		"host_id", userID,
		"force", req.Msg.Force,
	)

	order, notReady, err := s.engine.AdvanceToReady(ctx, req.Msg.GroupOrderID, userID, req.Msg.Force)
	if err != nil {
		return nil, toConnectError(AdvanceToReadyProcedure, err)
	}
	return connect.NewResponse(&AdvanceToReadyResponse{
		GroupOrder: toGroupOrder(order),
		NotReady:   notReady,
	}), nil
}

// ContributeBudget adds the caller's funds to the pool.
func (s *GroupOrderService) ContributeBudget(ctx context.Context, req *connect.Request[ContributeBudgetRequest]) (*connect.Response[ContributeBudgetResponse], error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("ContributeBudget request received",
		"group_order_id", req.Msg.GroupOrderID,
		"participant_id", userID,
		"amount", req.Msg.Amount,
	)

	budget, err := s.engine.ContributeBudget(ctx, req.Msg.GroupOrderID, userID, userID, models.Money(req.Msg.Amount), req.Msg.IdempotencyKey)
	if err != nil {
		return nil, toConnectError(ContributeBudgetProcedure, err)
	}
	return connect.NewResponse(&ContributeBudgetResponse{Budget: toBudget(budget)}), nil
}

// GetGroupOrderStatus returns the order with its participants and pool.
func (s *GroupOrderService) GetGroupOrderStatus(ctx context.Context, req *connect.Request[GetGroupOrderStatusRequest]) (*connect.Response[GetGroupOrderStatusResponse], error) {
	if _, err := caller(ctx); err != nil {
		return nil, err
	}
	slog.Debug("GetGroupOrderStatus request received", "group_order_id", req.Msg.GroupOrderID)

	st, err := s.engine.GetGroupOrderStatus(ctx, req.Msg.GroupOrderID)
	if err != nil {
		return nil, toConnectError(GetGroupOrderStatusProcedure, err)
	}
	return connect.NewResponse(toStatusResponse(st)), nil
}

// GetSelections returns the order's selections to one of its participants.
func (s *GroupOrderService) GetSelections(ctx context.Context, req *connect.Request[GetSelectionsRequest]) (*connect.Response[GetSelectionsResponse], error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	slog.Debug("GetSelections request received",
		"group_order_id", req.Msg.GroupOrderID,
		"participant_id", req.Msg.ParticipantID,
	)

	sels, err := s.engine.GetSelections(ctx, req.Msg.GroupOrderID, userID, req.Msg.ParticipantID)
	if err != nil {
		return nil, toConnectError(GetSelectionsProcedure, err)
	}
	return connect.NewResponse(&GetSelectionsResponse{Selections: toSelections(sels)}), nil
}

// CloseGroupOrder finalizes the order and submits it.
func (s *GroupOrderService) CloseGroupOrder(ctx context.Context, req *connect.Request[CloseGroupOrderRequest]) (*connect.Response[CloseGroupOrderResponse], error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("CloseGroupOrder request received",
		"group_order_id", req.Msg.GroupOrderID,
		"host_id", userID,
		"allow_underfunded", req.Msg.AllowUnderfunded,
	)

	finalized, err := s.engine.CloseGroupOrder(ctx, req.Msg.GroupOrderID, userID, req.Msg.AllowUnderfunded)
	if err != nil {
		return nil, toConnectError(CloseGroupOrderProcedure, err)
	}
	return connect.NewResponse(&CloseGroupOrderResponse{Order: toFinalized(finalized)}), nil
}

// CancelGroupOrder ends an open or selecting order.
func (s *GroupOrderService) CancelGroupOrder(ctx context.Context, req *connect.Request[CancelGroupOrderRequest]) (*connect.Response[CancelGroupOrderResponse], error) {
	userID, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("CancelGroupOrder request received", "group_order_id", req.Msg.GroupOrderID, "actor_id", userID)

	order, err := s.engine.CancelGroupOrder(ctx, req.Msg.GroupOrderID, userID)
	if err != nil {
		return nil, toConnectError(CancelGroupOrderProcedure, err)
	}
	return connect.NewResponse(&CancelGroupOrderResponse{GroupOrder: toGroupOrder(order)}), nil
}

// WatchGroupOrder streams phase changes to a participant. The first
// message reports the current status; the stream ends once the order
// reaches a terminal status.
func (s *GroupOrderService) WatchGroupOrder(ctx context.Context, req *connect.Request[WatchGroupOrderRequest], stream *connect.ServerStream[PhaseEvent]) error {
	userID, err := caller(ctx)
	if err != nil {
		return err
	}
	groupOrderID := req.Msg.GroupOrderID
	slog.Info("WatchGroupOrder request received", "group_order_id", groupOrderID, "user_id", userID)

	events, unsubscribe, err := s.engine.Subscribe(ctx, groupOrderID, userID)
	if err != nil {
		return toConnectError(WatchGroupOrderProcedure, err)
	}
	defer unsubscribe()

	st, err := s.engine.GetGroupOrderStatus(ctx, groupOrderID)
	if err != nil {
		return toConnectError(WatchGroupOrderProcedure, err)
	}
	current := st.GroupOrder
	if err := stream.Send(&PhaseEvent{
		GroupOrderID: groupOrderID,
		To:           current.Status,
		Reason:       "current status",
		At:           current.UpdatedAt,
	}); err != nil {
		return err
	}
	if current.Status.IsTerminal() {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if err := stream.Send(toEvent(e)); err != nil {
				return err
			}
			if e.To.IsTerminal() {
				return nil
			}
		}
	}
}
