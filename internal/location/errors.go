package location

import "errors"

var (
	// ErrRoomNotFound is returned when a room ID does not exist.
	ErrRoomNotFound = errors.New("location: room not found")

	// ErrRoomExists is returned when two room definitions share an ID.
	ErrRoomExists = errors.New("location: room already exists")

	// ErrInvalidRoom is returned when a room definition fails validation.
	ErrInvalidRoom = errors.New("location: invalid room")
)
