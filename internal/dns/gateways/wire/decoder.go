// Package wire decodes captured DNS messages into domain questions.
package wire

import (
	"errors"
	"fmt"

	"github.com/miekg/dns"

	"github.com/haukened/exfil-watch/internal/dns/common/utils"
	"github.com/haukened/exfil-watch/internal/dns/domain"
)

var (
	// ErrNotQuery is returned for messages with the QR (response) bit set.
	ErrNotQuery = errors.New("message is a response, not a query")
	// ErrNoQuestion is returned for messages without a question section.
	ErrNoQuestion = errors.New("message has no question")
)

// QueryDecoder turns a wire-format DNS message into its first question.
type QueryDecoder interface {
	DecodeQuery(data []byte) (domain.Question, error)
}

type decoder struct{}

// NewQueryDecoder returns a QueryDecoder backed by miekg/dns.
func NewQueryDecoder() QueryDecoder {
	return decoder{}
}

// DecodeQuery unpacks data and returns the first question. The name is
// returned as raw label bytes joined by dots, with invalid UTF-8 dropped and
// case preserved.
func (decoder) DecodeQuery(data []byte) (domain.Question, error) {
	var msg dns.Msg
	if err := msg.Unpack(data); err != nil {
		return domain.Question{}, fmt.Errorf("failed to unpack dns message: %w", err)
	}
	return QuestionFromMsg(&msg)
}

// QuestionFromMsg extracts the first question of an already unpacked message.
func QuestionFromMsg(msg *dns.Msg) (domain.Question, error) {
	if msg.Response {
		return domain.Question{}, ErrNotQuery
	}
	if len(msg.Question) == 0 {
		return domain.Question{}, ErrNoQuestion
	}
	q := msg.Question[0]
	name := utils.ValidUTF8Name(unescapeName(q.Name))
	return domain.NewQuestion(msg.Id, name, q.Qtype)
}

// unescapeName reverses miekg's presentation escaping (\DDD and \X) so that
// scoring sees the bytes that were on the wire.
func unescapeName(s string) string {
	if !containsBackslash(s) {
		return s
	}
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			out = append(out, c)
			continue
		}
		if i+3 < len(s) && isDigit(s[i+1]) && isDigit(s[i+2]) && isDigit(s[i+3]) {
			v := int(s[i+1]-'0')*100 + int(s[i+2]-'0')*10 + int(s[i+3]-'0')
			if v <= 0xff {
				out = append(out, byte(v))
				i += 3
				continue
			}
		}
		out = append(out, s[i+1])
		i++
	}
	return string(out)
}

func containsBackslash(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' {
			return true
		}
	}
	return false
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
