package room

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/pidr/go/internal/connectutil"
	"github.com/mcdev12/pidr/go/internal/models"
)

// ServiceName is the connect service path of the room API
const ServiceName = "pidr.v1.RoomService"

// RoomApp defines what the service layer needs from the room application
type RoomApp interface {
	CreateRoom(ctx context.Context, req CreateRoomRequest) (*RoomDetails, error)
	JoinRoom(ctx context.Context, req JoinRoomRequest) (*JoinResult, error)
	LeaveRoom(ctx context.Context, occupant models.OccupantID, roomID uuid.UUID) (*LeaveResult, error)
	CloseRoom(ctx context.Context, caller models.OccupantID, roomID uuid.UUID) error
	AddBot(ctx context.Context, caller models.OccupantID, roomID uuid.UUID) (*models.Seat, *models.BotIdentity, error)
	RemoveBot(ctx context.Context, caller models.OccupantID, roomID uuid.UUID) (*models.Seat, error)
	SetReady(ctx context.Context, occupant models.OccupantID, roomID uuid.UUID, ready bool) (*models.Seat, error)
	StartGame(ctx context.Context, caller models.OccupantID, roomID uuid.UUID) (*RoomDetails, error)
	GetRoom(ctx context.Context, roomID uuid.UUID) (*RoomDetails, error)
	ListRooms(ctx context.Context, limit int) ([]models.Room, error)
}

// Service implements the RoomService connect API
type Service struct {
	app RoomApp
}

// NewService creates a new room service
func NewService(app RoomApp) *Service {
	return &Service{app: app}
}

// Handler mounts every RoomService procedure.
func (s *Service) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	mux := connectutil.NewServiceMux(ServiceName, opts...)
	connectutil.Handle(mux, "CreateRoom", s.CreateRoom)
	connectutil.Handle(mux, "JoinRoom", s.JoinRoom)
	connectutil.Handle(mux, "LeaveRoom", s.LeaveRoom)
	connectutil.Handle(mux, "CloseRoom", s.CloseRoom)
	connectutil.Handle(mux, "AddBot", s.AddBot)
	connectutil.Handle(mux, "RemoveBot", s.RemoveBot)
	connectutil.Handle(mux, "SetReady", s.SetReady)
	connectutil.Handle(mux, "StartGame", s.StartGame)
	connectutil.Handle(mux, "GetRoom", s.GetRoom)
	connectutil.Handle(mux, "ListRooms", s.ListRooms)
	return mux.Handler()
}

// CreateRoom opens a room hosted by the caller
func (s *Service) CreateRoom(ctx context.Context, req *connect.Request[CreateRoomMessage]) (*connect.Response[RoomResponse], error) {
	caller, err := connectutil.Caller(ctx)
	if err != nil {
		return nil, err
	}
	details, err := s.app.CreateRoom(ctx, CreateRoomRequest{
		Host:        caller,
		DisplayName: req.Msg.DisplayName,
		MaxPlayers:  req.Msg.MaxPlayers,
		Visibility:  req.Msg.Visibility,
		Password:    req.Msg.Password,
	})
	if err != nil {
		return nil, connectutil.Error(err)
	}
	return connect.NewResponse(&RoomResponse{Room: *details}), nil
}

// JoinRoom seats the caller by room id or join code
func (s *Service) JoinRoom(ctx context.Context, req *connect.Request[JoinRoomMessage]) (*connect.Response[JoinRoomResponse], error) {
	caller, err := connectutil.Caller(ctx)
	if err != nil {
		return nil, err
	}
	roomID, err := optionalRoomID(req.Msg.RoomID)
	if err != nil {
		return nil, err
	}
	res, err := s.app.JoinRoom(ctx, JoinRoomRequest{
		Occupant:    caller,
		DisplayName: req.Msg.DisplayName,
		RoomID:      roomID,
		Code:        req.Msg.Code,
		Password:    req.Msg.Password,
	})
	if err != nil {
		return nil, s.reject(ctx, roomID, err)
	}
	return connect.NewResponse(&JoinRoomResponse{
		Room:          res.Details,
		Seat:          res.Seat,
		AlreadySeated: res.AlreadySeated,
	}), nil
}

// LeaveRoom removes the caller's seat
func (s *Service) LeaveRoom(ctx context.Context, req *connect.Request[RoomRef]) (*connect.Response[LeaveRoomResponse], error) {
	caller, roomID, err := callerAndRoom(ctx, *req.Msg)
	if err != nil {
		return nil, err
	}
	res, err := s.app.LeaveRoom(ctx, caller, roomID)
	if err != nil {
		return nil, s.reject(ctx, roomID, err)
	}
	return connect.NewResponse(&LeaveRoomResponse{
		NewHost:    res.NewHost,
		RoomClosed: res.RoomClosed,
	}), nil
}

// CloseRoom removes a room hosted by the caller
func (s *Service) CloseRoom(ctx context.Context, req *connect.Request[RoomRef]) (*connect.Response[Empty], error) {
	caller, roomID, err := callerAndRoom(ctx, *req.Msg)
	if err != nil {
		return nil, err
	}
	if err := s.app.CloseRoom(ctx, caller, roomID); err != nil {
		return nil, s.reject(ctx, roomID, err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// AddBot seats a bot in the caller's room
func (s *Service) AddBot(ctx context.Context, req *connect.Request[RoomRef]) (*connect.Response[BotResponse], error) {
	caller, roomID, err := callerAndRoom(ctx, *req.Msg)
	if err != nil {
		return nil, err
	}
	seat, bot, err := s.app.AddBot(ctx, caller, roomID)
	if err != nil {
		return nil, s.reject(ctx, roomID, err)
	}
	return connect.NewResponse(&BotResponse{Seat: *seat, Bot: bot}), nil
}

// RemoveBot unseats the most recently added bot
func (s *Service) RemoveBot(ctx context.Context, req *connect.Request[RoomRef]) (*connect.Response[BotResponse], error) {
	caller, roomID, err := callerAndRoom(ctx, *req.Msg)
	if err != nil {
		return nil, err
	}
	seat, err := s.app.RemoveBot(ctx, caller, roomID)
	if err != nil {
		return nil, s.reject(ctx, roomID, err)
	}
	return connect.NewResponse(&BotResponse{Seat: *seat}), nil
}

// SetReady toggles the caller's ready flag
func (s *Service) SetReady(ctx context.Context, req *connect.Request[SetReadyMessage]) (*connect.Response[SeatResponse], error) {
	caller, roomID, err := callerAndRoom(ctx, RoomRef{RoomID: req.Msg.RoomID})
	if err != nil {
		return nil, err
	}
	seat, err := s.app.SetReady(ctx, caller, roomID, req.Msg.Ready)
	if err != nil {
		return nil, s.reject(ctx, roomID, err)
	}
	return connect.NewResponse(&SeatResponse{Seat: *seat}), nil
}

// StartGame starts the game in the caller's room
func (s *Service) StartGame(ctx context.Context, req *connect.Request[RoomRef]) (*connect.Response[RoomResponse], error) {
	caller, roomID, err := callerAndRoom(ctx, *req.Msg)
	if err != nil {
		return nil, err
	}
	details, err := s.app.StartGame(ctx, caller, roomID)
	if err != nil {
		return nil, s.reject(ctx, roomID, err)
	}
	return connect.NewResponse(&RoomResponse{Room: *details}), nil
}

// GetRoom returns a room with its seats
func (s *Service) GetRoom(ctx context.Context, req *connect.Request[RoomRef]) (*connect.Response[RoomResponse], error) {
	_, roomID, err := callerAndRoom(ctx, *req.Msg)
	if err != nil {
		return nil, err
	}
	details, err := s.app.GetRoom(ctx, roomID)
	if err != nil {
		return nil, connectutil.Error(err)
	}
	return connect.NewResponse(&RoomResponse{Room: *details}), nil
}

// ListRooms returns public open rooms
func (s *Service) ListRooms(ctx context.Context, req *connect.Request[ListRoomsMessage]) (*connect.Response[ListRoomsResponse], error) {
	if _, err := connectutil.Caller(ctx); err != nil {
		return nil, err
	}
	rooms, err := s.app.ListRooms(ctx, req.Msg.Limit)
	if err != nil {
		return nil, connectutil.Error(err)
	}
	return connect.NewResponse(&ListRoomsResponse{Rooms: rooms}), nil
}

// reject attaches the room as it stands to a rejected command, so the
// caller can resync without another round trip. Joins by code carry no id
// and get the plain error.
func (s *Service) reject(ctx context.Context, roomID uuid.UUID, err error) error {
	if roomID == uuid.Nil || errors.Is(err, models.ErrRoomNotFound) {
		return connectutil.Error(err)
	}
	details, gerr := s.app.GetRoom(ctx, roomID)
	if gerr != nil {
		return connectutil.Error(err)
	}
	return connectutil.SnapshotError(err, uint64(details.Room.Version), details)
}

func callerAndRoom(ctx context.Context, ref RoomRef) (models.OccupantID, uuid.UUID, error) {
	caller, err := connectutil.Caller(ctx)
	if err != nil {
		return 0, uuid.Nil, err
	}
	roomID, err := uuid.Parse(ref.RoomID)
	if err != nil {
		return 0, uuid.Nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return caller, roomID, nil
}

func optionalRoomID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return id, nil
}
