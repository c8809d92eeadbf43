package domain

// Source identifies where an update was received from.
type Source string

const (
	SourceGRPC      Source = "GRPC"
	SourceWebSocket Source = "WEBSOCKET"
	SourceSnapshot  Source = "SNAPSHOT"
)

// String returns the string representation of Source.
func (s Source) String() string {
	return string(s)
}

// IsValid checks if the source is a valid value.
func (s Source) IsValid() bool {
	return s == SourceGRPC || s == SourceWebSocket || s == SourceSnapshot
}
