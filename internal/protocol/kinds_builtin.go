package protocol

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// Built-in body codecs. Body layouts are big-endian; strings are UTF-8.

// GenericPayload is kind 0: uninterpreted bytes.
type GenericPayload struct {
	Data []byte `json:"data"`
}

func (GenericPayload) PayloadKind() uint8 { return KindGeneric }

type genericCodec struct{}

func (genericCodec) Parse(body []byte) (KindPayload, error) {
	data := make([]byte, len(body))
	copy(data, body)
	return GenericPayload{Data: data}, nil
}

func (genericCodec) Render(p KindPayload) ([]byte, error) {
	gp, ok := p.(GenericPayload)
	if !ok {
		return nil, fmt.Errorf("generic codec: unexpected payload type %T", p)
	}
	return append([]byte(nil), gp.Data...), nil
}

// TextPayload is kind 1: a UTF-8 string.
type TextPayload struct {
	Text string `json:"text"`
}

func (TextPayload) PayloadKind() uint8 { return KindText }

type textCodec struct{}

func (textCodec) Parse(body []byte) (KindPayload, error) {
	if !utf8.Valid(body) {
		return nil, fmt.Errorf("text body is not valid UTF-8")
	}
	return TextPayload{Text: string(body)}, nil
}

func (textCodec) Render(p KindPayload) ([]byte, error) {
	tp, ok := p.(TextPayload)
	if !ok {
		return nil, fmt.Errorf("text codec: unexpected payload type %T", p)
	}
	return []byte(tp.Text), nil
}

// StatePayload is kind 2: a 1-byte state code plus an optional UTF-8 label.
type StatePayload struct {
	Code  uint8  `json:"code"`
	Label string `json:"label,omitempty"`
}

func (StatePayload) PayloadKind() uint8 { return KindState }

type stateCodec struct{}

func (stateCodec) Parse(body []byte) (KindPayload, error) {
	if len(body) < 1 {
		return nil, fmt.Errorf("state body needs at least 1 byte")
	}
	if !utf8.Valid(body[1:]) {
		return nil, fmt.Errorf("state label is not valid UTF-8")
	}
	return StatePayload{Code: body[0], Label: string(body[1:])}, nil
}

func (stateCodec) Render(p KindPayload) ([]byte, error) {
	sp, ok := p.(StatePayload)
	if !ok {
		return nil, fmt.Errorf("state codec: unexpected payload type %T", p)
	}
	out := make([]byte, 0, 1+len(sp.Label))
	out = append(out, sp.Code)
	return append(out, sp.Label...), nil
}

// VotePayload is kind 3: a 1-byte choice and an 8-byte weight.
type VotePayload struct {
	Choice uint8  `json:"choice"`
	Weight uint64 `json:"weight"`
}

func (VotePayload) PayloadKind() uint8 { return KindVote }

type voteCodec struct{}

func (voteCodec) Parse(body []byte) (KindPayload, error) {
	if len(body) != 9 {
		return nil, fmt.Errorf("vote body must be 9 bytes, got %d", len(body))
	}
	return VotePayload{
		Choice: body[0],
		Weight: binary.BigEndian.Uint64(body[1:9]),
	}, nil
}

func (voteCodec) Render(p KindPayload) ([]byte, error) {
	vp, ok := p.(VotePayload)
	if !ok {
		return nil, fmt.Errorf("vote codec: unexpected payload type %T", p)
	}
	out := make([]byte, 9)
	out[0] = vp.Choice
	binary.BigEndian.PutUint64(out[1:], vp.Weight)
	return out, nil
}

// ImagePayload is kind 4: a length-prefixed content type followed by
// the image bytes.
type ImagePayload struct {
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

func (ImagePayload) PayloadKind() uint8 { return KindImage }

type imageCodec struct{}

func (imageCodec) Parse(body []byte) (KindPayload, error) {
	if len(body) < 1 {
		return nil, fmt.Errorf("image body needs a content-type length byte")
	}
	ctLen := int(body[0])
	if len(body) < 1+ctLen {
		return nil, fmt.Errorf("image content type truncated: need %d bytes, have %d", ctLen, len(body)-1)
	}
	ct := body[1 : 1+ctLen]
	if !utf8.Valid(ct) {
		return nil, fmt.Errorf("image content type is not valid UTF-8")
	}
	data := make([]byte, len(body)-1-ctLen)
	copy(data, body[1+ctLen:])
	return ImagePayload{ContentType: string(ct), Data: data}, nil
}

func (imageCodec) Render(p KindPayload) ([]byte, error) {
	ip, ok := p.(ImagePayload)
	if !ok {
		return nil, fmt.Errorf("image codec: unexpected payload type %T", p)
	}
	if len(ip.ContentType) > 255 {
		return nil, fmt.Errorf("image content type exceeds 255 bytes")
	}
	out := make([]byte, 0, 1+len(ip.ContentType)+len(ip.Data))
	out = append(out, uint8(len(ip.ContentType)))
	out = append(out, ip.ContentType...)
	return append(out, ip.Data...), nil
}

// GeoPayload is kind 5: latitude and longitude in signed microdegrees.
type GeoPayload struct {
	LatMicro int32 `json:"lat_micro"`
	LonMicro int32 `json:"lon_micro"`
}

func (GeoPayload) PayloadKind() uint8 { return KindGeo }

type geoCodec struct{}

func (geoCodec) Parse(body []byte) (KindPayload, error) {
	if len(body) != 8 {
		return nil, fmt.Errorf("geo body must be 8 bytes, got %d", len(body))
	}
	lat := int32(binary.BigEndian.Uint32(body[0:4]))
	lon := int32(binary.BigEndian.Uint32(body[4:8]))
	if lat < -90_000_000 || lat > 90_000_000 {
		return nil, fmt.Errorf("latitude %d out of range", lat)
	}
	if lon < -180_000_000 || lon > 180_000_000 {
		return nil, fmt.Errorf("longitude %d out of range", lon)
	}
	return GeoPayload{LatMicro: lat, LonMicro: lon}, nil
}

func (geoCodec) Render(p KindPayload) ([]byte, error) {
	gp, ok := p.(GeoPayload)
	if !ok {
		return nil, fmt.Errorf("geo codec: unexpected payload type %T", p)
	}
	out := make([]byte, 8)
	binary.BigEndian.PutUint32(out[0:4], uint32(gp.LatMicro))
	binary.BigEndian.PutUint32(out[4:8], uint32(gp.LonMicro))
	return out, nil
}

// DNSPayload is kind 10: a NUL-separated name/value pair.
type DNSPayload struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (DNSPayload) PayloadKind() uint8 { return KindDNS }

type dnsCodec struct{}

func (dnsCodec) Parse(body []byte) (KindPayload, error) {
	if !utf8.Valid(body) {
		return nil, fmt.Errorf("dns body is not valid UTF-8")
	}
	sep := -1
	for i, b := range body {
		if b == 0 {
			sep = i
			break
		}
	}
	if sep < 0 {
		return nil, fmt.Errorf("dns body missing name/value separator")
	}
	if sep == 0 {
		return nil, fmt.Errorf("dns name is empty")
	}
	return DNSPayload{Name: string(body[:sep]), Value: string(body[sep+1:])}, nil
}

func (dnsCodec) Render(p KindPayload) ([]byte, error) {
	dp, ok := p.(DNSPayload)
	if !ok {
		return nil, fmt.Errorf("dns codec: unexpected payload type %T", p)
	}
	out := make([]byte, 0, len(dp.Name)+1+len(dp.Value))
	out = append(out, dp.Name...)
	out = append(out, 0)
	return append(out, dp.Value...), nil
}

// ProofPayload is kind 11: a 1-byte algorithm id and a 32-byte digest.
type ProofPayload struct {
	Algo   uint8    `json:"algo"`
	Digest [32]byte `json:"digest"`
}

func (ProofPayload) PayloadKind() uint8 { return KindProof }

type proofCodec struct{}

func (proofCodec) Parse(body []byte) (KindPayload, error) {
	if len(body) != 33 {
		return nil, fmt.Errorf("proof body must be 33 bytes, got %d", len(body))
	}
	pp := ProofPayload{Algo: body[0]}
	copy(pp.Digest[:], body[1:33])
	return pp, nil
}

func (proofCodec) Render(p KindPayload) ([]byte, error) {
	pp, ok := p.(ProofPayload)
	if !ok {
		return nil, fmt.Errorf("proof codec: unexpected payload type %T", p)
	}
	out := make([]byte, 33)
	out[0] = pp.Algo
	copy(out[1:], pp.Digest[:])
	return out, nil
}

// TokenPayload is kind 20: a 1-byte operation, an 8-byte amount, and a
// UTF-8 ticker.
type TokenPayload struct {
	Op     uint8  `json:"op"`
	Amount uint64 `json:"amount"`
	Ticker string `json:"ticker"`
}

func (TokenPayload) PayloadKind() uint8 { return KindToken }

type tokenCodec struct{}

func (tokenCodec) Parse(body []byte) (KindPayload, error) {
	if len(body) < 9 {
		return nil, fmt.Errorf("token body must be at least 9 bytes, got %d", len(body))
	}
	ticker := body[9:]
	if !utf8.Valid(ticker) {
		return nil, fmt.Errorf("token ticker is not valid UTF-8")
	}
	return TokenPayload{
		Op:     body[0],
		Amount: binary.BigEndian.Uint64(body[1:9]),
		Ticker: string(ticker),
	}, nil
}

func (tokenCodec) Render(p KindPayload) ([]byte, error) {
	tp, ok := p.(TokenPayload)
	if !ok {
		return nil, fmt.Errorf("token codec: unexpected payload type %T", p)
	}
	out := make([]byte, 0, 9+len(tp.Ticker))
	out = append(out, tp.Op)
	out = binary.BigEndian.AppendUint64(out, tp.Amount)
	return append(out, tp.Ticker...), nil
}
