package domain

import "errors"

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrRoomFull      = errors.New("room is full")
	ErrConnNotFound  = errors.New("connection not found")
	ErrAlreadyJoined = errors.New("connection already joined a room")
	ErrNoSegments    = errors.New("no segments found")
	ErrLinkClosed    = errors.New("peer link is closed")
	ErrNotRecording  = errors.New("no capture session in progress")
	ErrRecording     = errors.New("capture session already in progress")

	ErrObjectNotFound = errors.New("object not found")
	ErrObjectExists   = errors.New("object already exists")
)
