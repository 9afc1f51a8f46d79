package chat

import (
	"testing"
)

func TestParseCursor(t *testing.T) {
	tests := []struct {
		name    string
		cursor  string
		want    int
		wantErr bool
	}{
		{"empty means first page", "", 0, false},
		{"zero", "0", 0, false},
		{"positive offset", "150", 150, false},
		{"negative rejected", "-5", 0, true},
		{"garbage rejected", "abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCursor(tt.cursor)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}
