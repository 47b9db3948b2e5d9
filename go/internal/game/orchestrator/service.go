package orchestrator

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/pidr/go/internal/connectutil"
	"github.com/mcdev12/pidr/go/internal/game"
	"github.com/mcdev12/pidr/go/internal/models"
)

// ServiceName is the connect service path of the game API
const ServiceName = "pidr.v1.GameService"

// GameApp defines what the service layer needs from the orchestrator
type GameApp interface {
	Submit(ctx context.Context, cmd Command) (*Result, error)
	Snapshot(ctx context.Context, roomID uuid.UUID) (*game.Snapshot, error)
}

// Service implements the GameService connect API
type Service struct {
	app GameApp
}

// NewService creates a new game service
func NewService(app GameApp) *Service {
	return &Service{app: app}
}

// Handler mounts every GameService procedure.
func (s *Service) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	mux := connectutil.NewServiceMux(ServiceName, opts...)
	connectutil.Handle(mux, "PlayCard", s.PlayCard)
	connectutil.Handle(mux, "DrawCard", s.DrawCard)
	connectutil.Handle(mux, "TakeStack", s.TakeStack)
	connectutil.Handle(mux, "Pass", s.Pass)
	connectutil.Handle(mux, "DeclareLastCard", s.DeclareLastCard)
	connectutil.Handle(mux, "ChallengeLastCard", s.ChallengeLastCard)
	connectutil.Handle(mux, "GetSnapshot", s.GetSnapshot)
	return mux.Handler()
}

// PlayCard attacks in stage 1 or plays onto the table afterwards
func (s *Service) PlayCard(ctx context.Context, req *connect.Request[PlayCardMessage]) (*connect.Response[GameResponse], error) {
	return s.submit(ctx, req.Msg.RoomID, Command{
		Kind:           game.ActionPlay,
		Card:           req.Msg.Card,
		Target:         req.Msg.Target,
		IdempotencyKey: req.Msg.IdempotencyKey,
	})
}

// DrawCard draws from the stage-1 deck
func (s *Service) DrawCard(ctx context.Context, req *connect.Request[TurnMessage]) (*connect.Response[GameResponse], error) {
	return s.submit(ctx, req.Msg.RoomID, Command{Kind: game.ActionDraw, IdempotencyKey: req.Msg.IdempotencyKey})
}

// TakeStack picks up the table
func (s *Service) TakeStack(ctx context.Context, req *connect.Request[TurnMessage]) (*connect.Response[GameResponse], error) {
	return s.submit(ctx, req.Msg.RoomID, Command{Kind: game.ActionTake, IdempotencyKey: req.Msg.IdempotencyKey})
}

// Pass declines to beat when the room allows it
func (s *Service) Pass(ctx context.Context, req *connect.Request[TurnMessage]) (*connect.Response[GameResponse], error) {
	return s.submit(ctx, req.Msg.RoomID, Command{Kind: game.ActionPass, IdempotencyKey: req.Msg.IdempotencyKey})
}

// DeclareLastCard announces the caller's last card
func (s *Service) DeclareLastCard(ctx context.Context, req *connect.Request[TurnMessage]) (*connect.Response[GameResponse], error) {
	return s.submit(ctx, req.Msg.RoomID, Command{Kind: game.ActionDeclare, IdempotencyKey: req.Msg.IdempotencyKey})
}

// ChallengeLastCard challenges a seat sitting on one undeclared card
func (s *Service) ChallengeLastCard(ctx context.Context, req *connect.Request[ChallengeMessage]) (*connect.Response[GameResponse], error) {
	return s.submit(ctx, req.Msg.RoomID, Command{
		Kind:           game.ActionChallenge,
		Target:         req.Msg.Target,
		IdempotencyKey: req.Msg.IdempotencyKey,
	})
}

// GetSnapshot returns the caller's view of the latest snapshot
func (s *Service) GetSnapshot(ctx context.Context, req *connect.Request[SnapshotRequest]) (*connect.Response[GameResponse], error) {
	caller, roomID, err := callerAndRoom(ctx, req.Msg.RoomID)
	if err != nil {
		return nil, err
	}
	snap, err := s.app.Snapshot(ctx, roomID)
	if err != nil {
		return nil, connectutil.Error(err)
	}
	return connect.NewResponse(&GameResponse{Snapshot: snap.ViewForOccupant(caller)}), nil
}

func (s *Service) submit(ctx context.Context, rawRoomID string, cmd Command) (*connect.Response[GameResponse], error) {
	caller, roomID, err := callerAndRoom(ctx, rawRoomID)
	if err != nil {
		return nil, err
	}
	cmd.RoomID = roomID
	cmd.Occupant = caller

	res, err := s.app.Submit(ctx, cmd)
	if err != nil {
		if res != nil && res.Snapshot != nil {
			return nil, connectutil.SnapshotError(err, res.Snapshot.Version, res.Snapshot.ViewForOccupant(caller))
		}
		return nil, connectutil.Error(err)
	}
	return connect.NewResponse(&GameResponse{
		Snapshot: res.Snapshot.ViewForOccupant(caller),
		Replayed: res.Replayed,
	}), nil
}

func callerAndRoom(ctx context.Context, raw string) (models.OccupantID, uuid.UUID, error) {
	caller, err := connectutil.Caller(ctx)
	if err != nil {
		return 0, uuid.Nil, err
	}
	roomID, err := uuid.Parse(raw)
	if err != nil {
		return 0, uuid.Nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return caller, roomID, nil
}
