package mesh

import "testing"

func TestNodeId_String(t *testing.T) {
	if got, want := NodeId(42).String(), "42"; got != want {
		t.Errorf("NodeId(42).String() = %q, want %q", got, want)
	}
}

func TestNodeType_String(t *testing.T) {
	tests := []struct {
		typ  NodeType
		want string
	}{
		{NodeTypeClient, "client"},
		{NodeTypeDrone, "drone"},
		{NodeTypeServer, "server"},
		{NodeType(99), "unknown(99)"},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("NodeType(%d).String() = %q, want %q", tt.typ, got, tt.want)
		}
	}
}
