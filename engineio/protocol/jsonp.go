package protocol

import (
	"bytes"
	"net/url"

	"golang.org/x/text/transform"
)

// WrapJSONP wraps an encoded payload as a JSONP script for the callback slot
// index: ___eio[<index>]('<payload>');
func WrapJSONP(index string, payload []byte) ([]byte, error) {
	if !validIndex(index) {
		return nil, ErrInvalidJSONPIndex.F(index)
	}
	esc, _, err := transform.Bytes(jsonpEscaper{}, payload)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(esc)+len(index)+12)
	buf = append(buf, "___eio["...)
	buf = append(buf, index...)
	buf = append(buf, "]('"...)
	buf = append(buf, esc...)
	buf = append(buf, "');"...)
	return buf, nil
}

// UnwrapJSONP recovers the payload from a JSONP POST form body "d=<payload>".
func UnwrapJSONP(body []byte) ([]byte, error) {
	if !bytes.HasPrefix(body, []byte("d=")) {
		return nil, ErrInvalidJSONP
	}
	s, err := url.QueryUnescape(string(body[2:]))
	if err != nil {
		return nil, ErrInvalidJSONPBody.F(err)
	}
	out, _, err := transform.String(jsonpUnescaper{}, s)
	if err != nil {
		return nil, ErrInvalidJSONPBody.F(err)
	}
	return []byte(out), nil
}

func validIndex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// jsonpEscaper escapes backslash, single quote and newline.
type jsonpEscaper struct{ transform.NopResetter }

func (jsonpEscaper) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		var esc byte
		switch src[nSrc] {
		case '\\':
			esc = '\\'
		case '\'':
			esc = '\''
		case '\n':
			esc = 'n'
		}

		if esc == 0 {
			if nDst >= len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst] = src[nSrc]
			nDst++
			nSrc++
			continue
		}

		if nDst+2 > len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		dst[nDst], dst[nDst+1] = '\\', esc
		nDst += 2
		nSrc++
	}
	return nDst, nSrc, nil
}

// jsonpUnescaper reverses jsonpEscaper. Unknown escapes pass through.
type jsonpUnescaper struct{ transform.NopResetter }

func (jsonpUnescaper) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		if nDst >= len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}

		c := src[nSrc]
		if c != '\\' {
			dst[nDst] = c
			nDst++
			nSrc++
			continue
		}

		if nSrc+1 >= len(src) {
			if !atEOF {
				return nDst, nSrc, transform.ErrShortSrc
			}
			dst[nDst] = c
			nDst++
			nSrc++
			continue
		}

		switch src[nSrc+1] {
		case '\\', '\'':
			dst[nDst] = src[nSrc+1]
		case 'n':
			dst[nDst] = '\n'
		default:
			if nDst+2 > len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst], dst[nDst+1] = c, src[nSrc+1]
			nDst++
		}
		nDst++
		nSrc += 2
	}
	return nDst, nSrc, nil
}
