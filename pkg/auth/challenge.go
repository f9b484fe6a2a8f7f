package auth

import (
	"strings"

	"golang.org/x/net/http/httpguts"
)

// Supported scheme names, lower-case.
const (
	SchemeBasic  = "basic"
	SchemeDigest = "digest"
)

// Challenge is one parsed WWW-Authenticate challenge.
type Challenge struct {
	// Scheme is lower-case.
	Scheme string

	// Params holds auth-params keyed by lower-case name.
	Params map[string]string

	// Token68 holds the opaque credentials form some schemes use instead of
	// parameters.
	Token68 string
}

// Realm returns the realm parameter.
func (c Challenge) Realm() string { return c.Params["realm"] }

// Param returns a parameter by case-insensitive name.
func (c Challenge) Param(name string) string { return c.Params[strings.ToLower(name)] }

// ParseChallenges parses WWW-Authenticate header values. A single value may
// hold several comma-separated challenges. Challenges that cannot be parsed
// are skipped.
func ParseChallenges(values ...string) []Challenge {
	var out []Challenge
	for _, v := range values {
		p := challengeParser{s: v}
		out = append(out, p.parse()...)
	}
	return out
}

// Select returns the strongest supported challenge. Digest is preferred over
// Basic.
func Select(challenges []Challenge) (Challenge, bool) {
	var basic *Challenge
	for i := range challenges {
		switch challenges[i].Scheme {
		case SchemeDigest:
			if supportedDigest(challenges[i]) == nil {
				return challenges[i], true
			}
		case SchemeBasic:
			if basic == nil {
				basic = &challenges[i]
			}
		}
	}
	if basic != nil {
		return *basic, true
	}
	return Challenge{}, false
}

type challengeParser struct {
	s   string
	pos int
}

func (p *challengeParser) parse() []Challenge {
	var out []Challenge
	for {
		p.skip(" \t,")
		if p.pos >= len(p.s) {
			return out
		}
		scheme := p.token()
		if scheme == "" {
			p.skipPast(',')
			continue
		}
		ch := Challenge{Scheme: strings.ToLower(scheme), Params: map[string]string{}}
		p.params(&ch)
		out = append(out, ch)
	}
}

// params reads auth-params until the next challenge starts.
func (p *challengeParser) params(ch *Challenge) {
	for {
		p.skip(" \t")
		start := p.pos
		name := p.token()
		p.skip(" \t")
		if name == "" || !p.consume('=') {
			p.pos = start
			return
		}
		p.skip(" \t")
		if p.pos >= len(p.s) || p.s[p.pos] == '=' || p.s[p.pos] == ',' {
			// token68 ends in padding.
			for p.pos < len(p.s) && p.s[p.pos] == '=' {
				p.pos++
			}
			ch.Token68 = p.s[start:p.pos]
			p.skip(" \t")
			p.consume(',')
			return
		}
		var value string
		if p.s[p.pos] == '"' {
			value = p.quoted()
		} else {
			value = p.token()
		}
		ch.Params[strings.ToLower(name)] = value
		p.skip(" \t")
		if !p.consume(',') {
			p.skipPast(',')
			return
		}
	}
}

func (p *challengeParser) token() string {
	start := p.pos
	for p.pos < len(p.s) && httpguts.IsTokenRune(rune(p.s[p.pos])) {
		p.pos++
	}
	return p.s[start:p.pos]
}

func (p *challengeParser) quoted() string {
	p.pos++
	var sb strings.Builder
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		p.pos++
		switch c {
		case '"':
			return sb.String()
		case '\\':
			if p.pos < len(p.s) {
				sb.WriteByte(p.s[p.pos])
				p.pos++
			}
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func (p *challengeParser) skip(set string) {
	for p.pos < len(p.s) && strings.IndexByte(set, p.s[p.pos]) >= 0 {
		p.pos++
	}
}

func (p *challengeParser) skipPast(c byte) {
	for p.pos < len(p.s) && p.s[p.pos] != c {
		p.pos++
	}
	if p.pos < len(p.s) {
		p.pos++
	}
}

func (p *challengeParser) consume(c byte) bool {
	if p.pos < len(p.s) && p.s[p.pos] == c {
		p.pos++
		return true
	}
	return false
}
