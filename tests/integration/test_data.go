package integration

import (
	"fmt"
	"time"
)

// TestUser generates unique test user credentials using timestamp
func TestUser(suffix string) (username, email, password string) {
	ts := time.Now().UnixNano()
	username = fmt.Sprintf("user-%d-%s", ts, suffix)
	email = fmt.Sprintf("test-%d-%s@example.com", ts, suffix)
	password = "TestPassword123!"
	return
}

// ExtractKeyFromLink extracts the activation key from a reset link
// Link format: "{base}/auth/password/reset?key={key}"
func ExtractKeyFromLink(link string) string {
	const marker = "?key="
	for i := 0; i+len(marker) <= len(link); i++ {
		if link[i:i+len(marker)] == marker {
			return link[i+len(marker):]
		}
	}
	return ""
}
