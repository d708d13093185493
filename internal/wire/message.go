// Package wire implements the callback wire format: decoding inbound
// callback markup into a closed set of typed messages and encoding reply
// messages back to markup.
package wire

// Header is the envelope shared by every inbound and reply message.
// MsgID is nil for event-class messages, which carry no message id.
type Header struct {
	To         string
	From       string
	CreateTime uint64
	MsgID      *uint64
}

// Info returns the header itself; embedding Header gives each variant the
// shared accessor without per-variant boilerplate.
func (h *Header) Info() *Header { return h }

// Inbound is a decoded callback message. The set of implementations is
// closed: all variants live in this package.
type Inbound interface {
	Info() *Header
}

// Text is a plain text message.
type Text struct {
	Header
	Content string
	// BizMsgMenuID is set when the text was produced by tapping a menu
	// option in a customer-service dialog.
	BizMsgMenuID string
}

// Image is an image message.
type Image struct {
	Header
	PicURL  string
	MediaID string
}

// Voice is a voice message; Recognition is the platform's speech-to-text
// result when the account has that capability enabled.
type Voice struct {
	Header
	MediaID     string
	Format      string
	Recognition string
}

// Video is a video message.
type Video struct {
	Header
	MediaID      string
	ThumbMediaID string
}

// ShortVideo is a short-form video message.
type ShortVideo struct {
	Header
	MediaID      string
	ThumbMediaID string
}

// Location is a shared geographic position.
type Location struct {
	Header
	X     float64
	Y     float64
	Scale uint64
	Label string
}

// Link is a shared link message.
type Link struct {
	Header
	Title       string
	Description string
	URL         string
}

// SubscribeEvent fires when a user follows the account directly.
type SubscribeEvent struct {
	Header
}

// UnsubscribeEvent fires when a user unfollows the account.
type UnsubscribeEvent struct {
	Header
}

// QrSubscribeEvent fires when an unfollowed user scans an account QR code;
// EventKey carries the scene value with a "qrscene_" prefix.
type QrSubscribeEvent struct {
	Header
	EventKey string
	Ticket   string
}

// ScanEvent fires when an already-followed user scans an account QR code.
type ScanEvent struct {
	Header
	EventKey string
	Ticket   string
}

// LocationReportEvent is the periodic geo-location report pushed while the
// user has location reporting enabled for the account.
type LocationReportEvent struct {
	Header
	Latitude  float64
	Longitude float64
	Precision float64
}

// ClickEvent is a custom-menu click that pulls a message.
type ClickEvent struct {
	Header
	EventKey string
}

// ViewEvent is a custom-menu click that opens a URL. MenuID identifies the
// personalized-menu rule when one matched.
type ViewEvent struct {
	Header
	EventKey string
	MenuID   string
}

// ScanCodePushEvent is the scan-code menu action that pushes the result.
type ScanCodePushEvent struct {
	Header
	EventKey   string
	ScanType   string
	ScanResult string
}

// ScanCodeWaitMsgEvent is the scan-code menu action that shows a
// "receiving message" prompt.
type ScanCodeWaitMsgEvent struct {
	Header
	EventKey   string
	ScanType   string
	ScanResult string
}

// PicSysPhotoEvent is the take-photo menu action.
type PicSysPhotoEvent struct {
	Header
	EventKey   string
	Count      int
	PicMD5Sums []string
}

// PicPhotoOrAlbumEvent is the photo-or-album menu action.
type PicPhotoOrAlbumEvent struct {
	Header
	EventKey   string
	Count      int
	PicMD5Sums []string
}

// PicWeixinEvent is the platform-album picker menu action.
type PicWeixinEvent struct {
	Header
	EventKey   string
	Count      int
	PicMD5Sums []string
}

// LocationSelectEvent is the location-picker menu action.
type LocationSelectEvent struct {
	Header
	EventKey string
	X        float64
	Y        float64
	Scale    int
	Label    string
	PoiName  string
}

// ViewMiniProgramEvent is a menu click that opens a mini program.
type ViewMiniProgramEvent struct {
	Header
	EventKey string
	MenuID   string
}

// Reply is a passive reply message. Construction is free-form; the only
// permitted mutation afterwards is Stamp, performed by the orchestrator
// before encoding. The set of implementations is closed.
type Reply interface {
	Info() *Header
	msgType() string
	writeBody(w *xmlWriter)
}

// Stamp sets the sender and recipient on a constructed reply.
func Stamp(r Reply, from, to string) {
	h := r.Info()
	h.From = from
	h.To = to
}

// TextReply replies with plain text.
type TextReply struct {
	Header
	Content string
}

// ImageReply replies with a previously uploaded media item.
type ImageReply struct {
	Header
	MediaID string
}

// VoiceReply replies with a previously uploaded voice item.
type VoiceReply struct {
	Header
	MediaID string
}

// VideoReply replies with a video; Title and Description are optional and
// omitted when empty.
type VideoReply struct {
	Header
	MediaID     string
	Title       string
	Description string
}

// MusicReply replies with a music card. ThumbMediaID is required; the other
// fields are omitted when empty.
type MusicReply struct {
	Header
	ThumbMediaID string
	Title        string
	Description  string
	MusicURL     string
	HQMusicURL   string
}

// Article is one item of a news reply.
type Article struct {
	Title       string
	Description string
	PicURL      string
	URL         string
}

// NewsReply replies with a list of article cards. The platform caps the
// list; the cap is the caller's responsibility, articles are emitted as
// given.
type NewsReply struct {
	Header
	Articles []Article
}
