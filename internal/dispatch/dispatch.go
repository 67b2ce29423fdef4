// Package dispatch routes a selected content item to the consumer that should
// open it and builds the deep links used to join live sessions.
package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/edumaster/catalogd/internal/model"
)

// RouteKind is the consumer a content item is sent to.
type RouteKind string

const (
	// RouteExternal opens the URL in a new browsing context.
	RouteExternal RouteKind = "external"
	// RoutePlayer opens the URL in the playback engine.
	RoutePlayer RouteKind = "player"
)

// Route is the outcome of classifying a content item.
type Route struct {
	Kind         RouteKind          `json:"kind"`
	URL          string             `json:"url"`
	Title        string             `json:"title,omitempty"`
	PlaybackType model.PlaybackType `json:"playbackType,omitempty"`
}

// PlayerRequest asks the playback engine to open a source.
type PlayerRequest struct {
	URL   string
	Title string
	Type  model.PlaybackType
	Chat  bool
}

// Opener performs the single action a dispatch decides on.
type Opener interface {
	OpenExternal(ctx context.Context, url string) error
	OpenPlayer(ctx context.Context, req PlayerRequest) error
}

// URLResolver turns a stored source URL into one a client can fetch.
type URLResolver interface {
	Resolve(ctx context.Context, raw string) (string, error)
}

// Classify applies the dispatch rules, in order:
// an alternate-player video goes external, any other video goes to the player,
// everything else goes external.
func Classify(c model.Content) Route {
	switch {
	case c.Type == model.KindVideo && c.PlayerType == model.RoutingAlternatePlayer:
		return Route{Kind: RouteExternal, URL: c.URL}
	case c.Type == model.KindVideo:
		return Route{Kind: RoutePlayer, URL: c.URL, Title: c.Name, PlaybackType: model.PlaybackLecture}
	default:
		return Route{Kind: RouteExternal, URL: c.URL}
	}
}

// Dispatcher classifies content and performs the resulting action.
type Dispatcher struct {
	opener   Opener
	resolver URLResolver
}

// New creates a Dispatcher. resolver may be nil, in which case URLs pass through.
func New(opener Opener, resolver URLResolver) *Dispatcher {
	return &Dispatcher{opener: opener, resolver: resolver}
}

// Dispatch routes c and performs exactly one open action. Repeated calls with the
// same item repeat the same action.
func (d *Dispatcher) Dispatch(ctx context.Context, c model.Content) (Route, error) {
	route := Classify(c)

	if d.resolver != nil {
		resolved, err := d.resolver.Resolve(ctx, route.URL)
		if err != nil {
			return route, fmt.Errorf("resolve source for %s: %w", c.ID, err)
		}
		route.URL = resolved
	}

	var err error
	switch route.Kind {
	case RoutePlayer:
		err = d.opener.OpenPlayer(ctx, PlayerRequest{URL: route.URL, Title: route.Title, Type: route.PlaybackType})
	case RouteExternal:
		err = d.opener.OpenExternal(ctx, route.URL)
	}
	if err != nil {
		return route, fmt.Errorf("open %s route: %w", route.Kind, err)
	}
	return route, nil
}

// Default deep-link targets of the external live player.
const (
	DefaultPlayerOrigin = "https://edumastervideoplarerwatch.netlify.app"
	DefaultFallbackURL  = "https://edumasterliveclasses.netlify.app/?video=https%3A%2F%2Fbitdash-a.akamaihd.net%2Fcontent%2Fsintel%2Fhls%2Fplaylist.m3u8&source=edumaster&player=EduMaster%20Video%20Player&chat=true&type=live"
)

// JoinTarget is anything a user can join live.
type JoinTarget struct {
	StreamURL           string
	ExternalMeetingLink string
}

// Links builds live join URLs.
type Links struct {
	PlayerOrigin string
	FallbackURL  string
}

// DefaultLinks returns Links with the stock player origin and fallback stream.
func DefaultLinks() Links {
	return Links{PlayerOrigin: DefaultPlayerOrigin, FallbackURL: DefaultFallbackURL}
}

// JoinURL picks, in priority order: the external player wrapping the stream URL,
// the meeting link verbatim, or the fallback sample stream.
func (l Links) JoinURL(t JoinTarget) string {
	switch {
	case t.StreamURL != "":
		return l.PlayerOrigin + "/live/" + encodeComponent(t.StreamURL)
	case t.ExternalMeetingLink != "":
		return t.ExternalMeetingLink
	default:
		return l.FallbackURL
	}
}

// encodeComponent percent-encodes every byte of s except ASCII letters, digits
// and -_.!~*'(), so reserved characters such as ':' and '/' are escaped.
func encodeComponent(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if componentSafe(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&15])
	}
	return b.String()
}

func componentSafe(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-_.!~*'()", c) >= 0
}
