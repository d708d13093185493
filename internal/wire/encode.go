package wire

import (
	"bytes"
	"strconv"
	"strings"
)

// Encode renders a reply to callback markup. Header elements are emitted in
// the fixed order the platform expects: recipient, sender, creation time,
// optional message id, message type, then the type-specific body.
func Encode(r Reply) string {
	h := r.Info()
	w := &xmlWriter{}

	w.open("xml")
	w.element("ToUserName", h.To)
	w.element("FromUserName", h.From)
	w.element("CreateTime", strconv.FormatUint(h.CreateTime, 10))
	if h.MsgID != nil {
		w.element("MsgId", strconv.FormatUint(*h.MsgID, 10))
	}
	w.element("MsgType", r.msgType())
	r.writeBody(w)
	w.close()

	return w.String()
}

func (r *TextReply) msgType() string { return "text" }
func (r *TextReply) writeBody(w *xmlWriter) {
	w.element("Content", r.Content)
}

func (r *ImageReply) msgType() string { return "image" }
func (r *ImageReply) writeBody(w *xmlWriter) {
	w.open("Image")
	w.element("MediaId", r.MediaID)
	w.close()
}

func (r *VoiceReply) msgType() string { return "voice" }
func (r *VoiceReply) writeBody(w *xmlWriter) {
	w.open("Voice")
	w.element("MediaId", r.MediaID)
	w.close()
}

func (r *VideoReply) msgType() string { return "video" }
func (r *VideoReply) writeBody(w *xmlWriter) {
	w.open("Video")
	w.element("MediaId", r.MediaID)
	w.elementOpt("Title", r.Title)
	w.elementOpt("Description", r.Description)
	w.close()
}

func (r *MusicReply) msgType() string { return "music" }
func (r *MusicReply) writeBody(w *xmlWriter) {
	w.open("Music")
	w.elementOpt("Title", r.Title)
	w.elementOpt("Description", r.Description)
	w.elementOpt("MusicUrl", r.MusicURL)
	w.elementOpt("HQMusicUrl", r.HQMusicURL)
	w.element("ThumbMediaId", r.ThumbMediaID)
	w.close()
}

func (r *NewsReply) msgType() string { return "news" }
func (r *NewsReply) writeBody(w *xmlWriter) {
	w.element("ArticleCount", strconv.Itoa(len(r.Articles)))
	w.open("Articles")
	for _, a := range r.Articles {
		w.open("Item")
		w.element("Title", a.Title)
		w.element("Description", a.Description)
		w.element("PicUrl", a.PicURL)
		w.element("Url", a.URL)
		w.close()
	}
	w.close()
}

// xmlWriter is a streaming tag-stack writer. It cannot fail at runtime;
// closing with no open tag is a programming error and panics.
type xmlWriter struct {
	buf   bytes.Buffer
	stack []string
}

func (w *xmlWriter) open(tag string) {
	w.buf.WriteByte('<')
	w.buf.WriteString(tag)
	w.buf.WriteByte('>')
	w.stack = append(w.stack, tag)
}

func (w *xmlWriter) close() {
	if len(w.stack) == 0 {
		panic("wire: close without open tag")
	}
	tag := w.stack[len(w.stack)-1]
	w.stack = w.stack[:len(w.stack)-1]
	w.buf.WriteString("</")
	w.buf.WriteString(tag)
	w.buf.WriteByte('>')
}

var textEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

func (w *xmlWriter) text(s string) {
	textEscaper.WriteString(&w.buf, s) //nolint:errcheck // bytes.Buffer cannot fail
}

func (w *xmlWriter) element(tag, text string) {
	w.open(tag)
	w.text(text)
	w.close()
}

// elementOpt emits the element only when text is non-empty.
func (w *xmlWriter) elementOpt(tag, text string) {
	if text == "" {
		return
	}
	w.element(tag, text)
}

func (w *xmlWriter) String() string { return w.buf.String() }
