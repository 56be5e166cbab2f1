// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the room handler.
// These provide more specific reasons for closure than standard codes.
const (
	BadSubprotocolError   = 3000 // Client connected with an unsupported subprotocol.
	InvalidAuthTokenError = 3001 // Identity could not be established for the connection.
	InvalidRoomIDError    = 3003 // Target room ID specified in the WS URL does not exist or is invalid.
	RoomClosedError       = 3004 // The room shut down while the client was connected.
)
