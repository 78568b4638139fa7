// Package parse turns vendor payloads into Series. The vendors wrap JSON in a
// few non-JSON envelopes (jsonp callbacks, js var assignments); the strippers
// here undo those before decoding. Parsers fail loudly: any shape surprise is a
// common.ErrParse, never a silently empty result.
package parse

import (
	"bytes"
	"fmt"

	"github.com/marianogappa/stock-quotes/quotes/common"
)

// ExtractJSON strips an optional `var name=` assignment prefix by scanning to
// the first '{' or '['. Payloads that are already bare JSON pass through.
func ExtractJSON(body []byte) ([]byte, error) {
	objIdx := bytes.IndexByte(body, '{')
	arrIdx := bytes.IndexByte(body, '[')
	idx := objIdx
	if idx < 0 || (arrIdx >= 0 && arrIdx < idx) {
		idx = arrIdx
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: no JSON document in payload", common.ErrParse)
	}
	return body[idx:], nil
}

// ExtractCallback unwraps a jsonp-style `anything(PAYLOAD);` envelope, taking
// everything between the first '(' and the last ')'.
func ExtractCallback(body []byte) ([]byte, error) {
	open := bytes.IndexByte(body, '(')
	closeIdx := bytes.LastIndexByte(body, ')')
	if open < 0 || closeIdx < open {
		return nil, fmt.Errorf("%w: no callback envelope in payload", common.ErrParse)
	}
	return body[open+1 : closeIdx], nil
}
