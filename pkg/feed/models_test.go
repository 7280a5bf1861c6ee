package feed

import "testing"

func TestPostIDFromPath(t *testing.T) {
	tests := []struct {
		name string
		href string
		want string
		ok   bool
	}{
		{"classic post path", "/p/DQxyz123/", "DQxyz123", true},
		{"reel path", "/reel/DQreel456/", "DQreel456", true},
		{"reels path", "/reels/DQreel789/", "DQreel789", true},
		{"tv path", "/tv/DQtv000/", "DQtv000", true},
		{"absolute url", "https://www.instagram.com/p/DQabs111/", "DQabs111", true},
		{"query string stripped", "/p/DQquery/?img_index=1", "DQquery", true},
		{"fragment stripped", "/p/DQfrag/#comments", "DQfrag", true},
		{"account-prefixed path", "/creator/p/DQnested/", "DQnested", true},
		{"no trailing slash", "/p/DQbare", "DQbare", true},
		{"only generic segments", "/p/", "", false},
		{"empty href", "", "", false},
		{"bare slash", "/", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PostIDFromPath(tt.href)
			if ok != tt.ok {
				t.Fatalf("PostIDFromPath(%q) ok = %v, want %v", tt.href, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("PostIDFromPath(%q) = %q, want %q", tt.href, got, tt.want)
			}
		})
	}
}
