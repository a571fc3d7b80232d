package service

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// GroupOrderServiceClient calls a GroupOrderService over Connect.
type GroupOrderServiceClient struct {
	createGroupOrder    *connect.Client[CreateGroupOrderRequest, CreateGroupOrderResponse]
	joinGroupOrder      *connect.Client[JoinGroupOrderRequest, JoinGroupOrderResponse]
	startSelection      *connect.Client[StartSelectionRequest, StartSelectionResponse]
	updateSelection     *connect.Client[UpdateSelectionRequest, UpdateSelectionResponse]
	markSelectionReady  *connect.Client[MarkSelectionReadyRequest, MarkSelectionReadyResponse]
	advanceToReady      *connect.Client[AdvanceToReadyRequest, AdvanceToReadyResponse]
	contributeBudget    *connect.Client[ContributeBudgetRequest, ContributeBudgetResponse]
	getGroupOrderStatus *connect.Client[GetGroupOrderStatusRequest, GetGroupOrderStatusResponse]
	getSelections       *connect.Client[GetSelectionsRequest, GetSelectionsResponse]
	closeGroupOrder     *connect.Client[CloseGroupOrderRequest, CloseGroupOrderResponse]
	cancelGroupOrder    *connect.Client[CancelGroupOrderRequest, CancelGroupOrderResponse]
	watchGroupOrder     *connect.Client[WatchGroupOrderRequest, PhaseEvent]
}

// NewGroupOrderServiceClient returns a client for the service at baseURL
// (e.g. http://localhost:8080).
func NewGroupOrderServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *GroupOrderServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &GroupOrderServiceClient{
		createGroupOrder:    connect.NewClient[CreateGroupOrderRequest, CreateGroupOrderResponse](httpClient, baseURL+CreateGroupOrderProcedure, opts...),
		joinGroupOrder:      connect.NewClient[JoinGroupOrderRequest, JoinGroupOrderResponse](httpClient, baseURL+JoinGroupOrderProcedure, opts...),
		startSelection:      connect.NewClient[StartSelectionRequest, StartSelectionResponse](httpClient, baseURL+StartSelectionProcedure, opts...),
		updateSelection:     connect.NewClient[UpdateSelectionRequest, UpdateSelectionResponse](httpClient, baseURL+UpdateSelectionProcedure, opts...),
		markSelectionReady:  connect.NewClient[MarkSelectionReadyRequest, MarkSelectionReadyResponse](httpClient, baseURL+MarkSelectionReadyProcedure, opts...),
		advanceToReady:      connect.NewClient[AdvanceToReadyRequest, AdvanceToReadyResponse](httpClient, baseURL+AdvanceToReadyProcedure, opts...),
		contributeBudget:    connect.NewClient[ContributeBudgetRequest, ContributeBudgetResponse](httpClient, baseURL+ContributeBudgetProcedure, opts...),
		getGroupOrderStatus: connect.NewClient[GetGroupOrderStatusRequest, GetGroupOrderStatusResponse](httpClient, baseURL+GetGroupOrderStatusProcedure, opts...),
		getSelections:       connect.NewClient[GetSelectionsRequest, GetSelectionsResponse](httpClient, baseURL+GetSelectionsProcedure, opts...),
		closeGroupOrder:     connect.NewClient[CloseGroupOrderRequest, CloseGroupOrderResponse](httpClient, baseURL+CloseGroupOrderProcedure, opts...),
		cancelGroupOrder:    connect.NewClient[CancelGroupOrderRequest, CancelGroupOrderResponse](httpClient, baseURL+CancelGroupOrderProcedure, opts...),
		watchGroupOrder:     connect.NewClient[WatchGroupOrderRequest, PhaseEvent](httpClient, baseURL+WatchGroupOrderProcedure, opts...),
	}
}

func (c *GroupOrderServiceClient) CreateGroupOrder(ctx context.Context, req *connect.Request[CreateGroupOrderRequest]) (*connect.Response[CreateGroupOrderResponse], error) {
	return c.createGroupOrder.CallUnary(ctx, req)
}

func (c *GroupOrderServiceClient) JoinGroupOrder(ctx context.Context, req *connect.Request[JoinGroupOrderRequest]) (*connect.Response[JoinGroupOrderResponse], error) {
	return c.joinGroupOrder.CallUnary(ctx, req)
}

func (c *GroupOrderServiceClient) StartSelection(ctx context.Context, req *connect.Request[StartSelectionRequest]) (*connect.Response[StartSelectionResponse], error) {
	return c.startSelection.CallUnary(ctx, req)
}

func (c *GroupOrderServiceClient) UpdateSelection(ctx context.Context, req *connect.Request[UpdateSelectionRequest]) (*connect.Response[UpdateSelectionResponse], error) {
	return c.updateSelection.CallUnary(ctx, req)
}

func (c *GroupOrderServiceClient) MarkSelectionReady(ctx context.Context, req *connect.Request[MarkSelectionReadyRequest]) (*connect.Response[MarkSelectionReadyResponse], error) {
	return c.markSelectionReady.CallUnary(ctx, req)
}

func (c *GroupOrderServiceClient) AdvanceToReady(ctx context.Context, req *connect.Request[AdvanceToReadyRequest]) (*connect.Response[AdvanceToReadyResponse], error) {
	return c.advanceToReady.CallUnary(ctx, req)
}

func (c *GroupOrderServiceClient) ContributeBudget(ctx context.Context, req *connect.Request[ContributeBudgetRequest]) (*connect.Response[ContributeBudgetResponse], error) {
	return c.contributeBudget.CallUnary(ctx, req)
}

func (c *GroupOrderServiceClient) GetGroupOrderStatus(ctx context.Context, req *connect.Request[GetGroupOrderStatusRequest]) (*connect.Response[GetGroupOrderStatusResponse], error) {
	return c.getGroupOrderStatus.CallUnary(ctx, req)
}

func (c *GroupOrderServiceClient) GetSelections(ctx context.Context, req *connect.Request[GetSelectionsRequest]) (*connect.Response[GetSelectionsResponse], error) {
	return c.getSelections.CallUnary(ctx, req)
}

func (c *GroupOrderServiceClient) CloseGroupOrder(ctx context.Context, req *connect.Request[CloseGroupOrderRequest]) (*connect.Response[CloseGroupOrderResponse], error) {
	return c.closeGroupOrder.CallUnary(ctx, req)
}

func (c *GroupOrderServiceClient) CancelGroupOrder(ctx context.Context, req *connect.Request[CancelGroupOrderRequest]) (*connect.Response[CancelGroupOrderResponse], error) {
	return c.cancelGroupOrder.CallUnary(ctx, req)
}

func (c *GroupOrderServiceClient) WatchGroupOrder(ctx context.Context, req *connect.Request[WatchGroupOrderRequest]) (*connect.ServerStreamForClient[PhaseEvent], error) {
	return c.watchGroupOrder.CallServerStream(ctx, req)
}
