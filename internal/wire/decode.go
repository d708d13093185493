package wire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
)

// ErrDecode is returned for malformed markup and for message or event types
// outside the closed variant set. The raw type string is included in the
// wrapped message; the request carrying it is rejected, not dropped.
var ErrDecode = errors.New("malformed callback markup")

// Decode parses inbound callback markup into its typed message. Dispatch is
// two-level: MsgType first, then Event for event-class messages.
func Decode(markup string) (Inbound, error) {
	d, err := parse(markup)
	if err != nil {
		return nil, err
	}

	h := Header{
		To:         d.text("ToUserName"),
		From:       d.text("FromUserName"),
		CreateTime: d.uint64("CreateTime"),
		MsgID:      d.uint64Opt("MsgId"),
	}

	switch msgType := d.text("MsgType"); msgType {
	case "text":
		return &Text{
			Header:       h,
			Content:      d.text("Content"),
			BizMsgMenuID: d.text("bizmsgmenuid"),
		}, nil
	case "image":
		return &Image{
			Header:  h,
			PicURL:  d.text("PicUrl"),
			MediaID: d.text("MediaId"),
		}, nil
	case "voice":
		return &Voice{
			Header:      h,
			MediaID:     d.text("MediaId"),
			Format:      d.text("Format"),
			Recognition: d.text("Recognition"),
		}, nil
	case "video":
		return &Video{
			Header:       h,
			MediaID:      d.text("MediaId"),
			ThumbMediaID: d.text("ThumbMediaId"),
		}, nil
	case "shortvideo":
		return &ShortVideo{
			Header:       h,
			MediaID:      d.text("MediaId"),
			ThumbMediaID: d.text("ThumbMediaId"),
		}, nil
	case "location":
		return &Location{
			Header: h,
			X:      d.float("Location_X"),
			Y:      d.float("Location_Y"),
			Scale:  d.uint64("Scale"),
			Label:  d.text("Label"),
		}, nil
	case "link":
		return &Link{
			Header:      h,
			Title:       d.text("Title"),
			Description: d.text("Description"),
			URL:         d.text("Url"),
		}, nil
	case "event":
		return decodeEvent(d, h)
	default:
		return nil, fmt.Errorf("%w: unknown message type %q", ErrDecode, msgType)
	}
}

func decodeEvent(d doc, h Header) (Inbound, error) {
	eventKey := d.text("EventKey")

	switch event := d.text("Event"); event {
	case "subscribe":
		// A subscribe carrying an EventKey came through a QR scan.
		if eventKey == "" {
			return &SubscribeEvent{Header: h}, nil
		}
		return &QrSubscribeEvent{
			Header:   h,
			EventKey: eventKey,
			Ticket:   d.text("Ticket"),
		}, nil
	case "unsubscribe":
		return &UnsubscribeEvent{Header: h}, nil
	case "SCAN":
		return &ScanEvent{
			Header:   h,
			EventKey: eventKey,
			Ticket:   d.text("Ticket"),
		}, nil
	case "LOCATION":
		return &LocationReportEvent{
			Header:    h,
			Latitude:  d.float("Latitude"),
			Longitude: d.float("Longitude"),
			Precision: d.float("Precision"),
		}, nil
	case "CLICK":
		return &ClickEvent{Header: h, EventKey: eventKey}, nil
	case "VIEW":
		return &ViewEvent{
			Header:   h,
			EventKey: eventKey,
			MenuID:   d.text("MenuID"),
		}, nil
	case "scancode_push":
		return &ScanCodePushEvent{
			Header:     h,
			EventKey:   eventKey,
			ScanType:   d.text("ScanCodeInfo/ScanType"),
			ScanResult: d.text("ScanCodeInfo/ScanResult"),
		}, nil
	case "scancode_waitmsg":
		return &ScanCodeWaitMsgEvent{
			Header:     h,
			EventKey:   eventKey,
			ScanType:   d.text("ScanCodeInfo/ScanType"),
			ScanResult: d.text("ScanCodeInfo/ScanResult"),
		}, nil
	case "pic_sysphoto":
		return &PicSysPhotoEvent{
			Header:     h,
			EventKey:   eventKey,
			Count:      int(d.uint64("SendPicsInfo/Count")),
			PicMD5Sums: d.strings("SendPicsInfo/PicList/*/PicMd5Sum"),
		}, nil
	case "pic_photo_or_album":
		return &PicPhotoOrAlbumEvent{
			Header:     h,
			EventKey:   eventKey,
			Count:      int(d.uint64("SendPicsInfo/Count")),
			PicMD5Sums: d.strings("SendPicsInfo/PicList/*/PicMd5Sum"),
		}, nil
	case "pic_weixin":
		return &PicWeixinEvent{
			Header:     h,
			EventKey:   eventKey,
			Count:      int(d.uint64("SendPicsInfo/Count")),
			PicMD5Sums: d.strings("SendPicsInfo/PicList/*/PicMd5Sum"),
		}, nil
	case "location_select":
		return &LocationSelectEvent{
			Header:   h,
			EventKey: eventKey,
			X:        d.float("SendLocationInfo/Location_X"),
			Y:        d.float("SendLocationInfo/Location_Y"),
			Scale:    int(d.float("SendLocationInfo/Scale")),
			Label:    d.text("SendLocationInfo/Label"),
			PoiName:  d.text("SendLocationInfo/Poiname"),
		}, nil
	case "view_miniprogram":
		return &ViewMiniProgramEvent{
			Header:   h,
			EventKey: eventKey,
			MenuID:   d.text("MenuId"),
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown event %q", ErrDecode, event)
	}
}

// ExtractEncrypted pulls the Encrypt element out of an encrypted-mode
// callback body.
func ExtractEncrypted(markup string) (string, error) {
	d, err := parse(markup)
	if err != nil {
		return "", err
	}
	enc := d.text("Encrypt")
	if enc == "" {
		return "", fmt.Errorf("%w: missing Encrypt element", ErrDecode)
	}
	return enc, nil
}

type doc struct {
	root *xmlquery.Node
}

func parse(markup string) (doc, error) {
	root, err := xmlquery.Parse(strings.NewReader(markup))
	if err != nil {
		return doc{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return doc{root: root}, nil
}

// text evaluates an element path under the root and returns its trimmed
// string value; absent elements yield "".
func (d doc) text(path string) string {
	n, err := xmlquery.Query(d.root, "/xml/"+path)
	if err != nil || n == nil {
		return ""
	}
	return strings.TrimSpace(n.InnerText())
}

// float evaluates the path as a number. The platform encodes integers as
// XPath numbers, so absent or non-numeric values behave like NaN and come
// back as zero.
func (d doc) float(path string) float64 {
	f, ok := d.floatOpt(path)
	if !ok {
		return 0
	}
	return f
}

func (d doc) floatOpt(path string) (float64, bool) {
	s := d.text(path)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// uint64 truncates the float value of the path.
func (d doc) uint64(path string) uint64 {
	return uint64(d.float(path))
}

func (d doc) uint64Opt(path string) *uint64 {
	f, ok := d.floatOpt(path)
	if !ok {
		return nil
	}
	n := uint64(f)
	return &n
}

// strings evaluates a node-set path and collects string values in document
// order.
func (d doc) strings(path string) []string {
	nodes, err := xmlquery.QueryAll(d.root, "/xml/"+path)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, strings.TrimSpace(n.InnerText()))
	}
	return out
}
