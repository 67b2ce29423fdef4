package playback

import (
	"fmt"
	"math"
)

// Message is one entry in a session's chat log.
type Message struct {
	ID     string `json:"id"`
	Author string `json:"author"`
	Text   string `json:"text"`
	Time   string `json:"time"`
}

// LocalAuthor labels messages sent from this session.
const LocalAuthor = "You"

// greetings seed the chat log of a live session.
var greetings = []Message{
	{ID: "1", Author: "Instructor", Text: "Welcome to the live class!", Time: "10:00"},
	{ID: "2", Author: "Student1", Text: "Thank you for the session", Time: "10:01"},
	{ID: "3", Author: "Student2", Text: "Great explanation!", Time: "10:02"},
}

// FormatTime renders seconds as m:ss. Invalid or negative input renders as 0:00.
func FormatTime(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return "0:00"
	}
	total := int64(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
