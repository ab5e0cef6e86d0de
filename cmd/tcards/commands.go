package main

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/daviddao/clockmail_cards/internal/settings"
)

type cardCommandKind int

const (
	notCardCommand cardCommandKind = iota
	cardsOn
	cardsOff
	cardsHelp
)

type cardCommand struct {
	kind       cardCommandKind
	directives settings.Directives
}

var (
	namedArg    = regexp.MustCompile(`^([a-z]+)=(\S*)$`)
	listSep     = regexp.MustCompile(`\s*,\s*`)
	commandName = regexp.MustCompile(`^/(\S+)`)
)

// parseCardCommand recognizes /tc-on, /tc-off and /tc?. Any other line
// yields notCardCommand and no error.
//
//	/tc-on [actions=set] [members=set] [reset=true] [name1, name2, ...]
func parseCardCommand(line string) (cardCommand, error) {
	m := commandName.FindStringSubmatch(line)
	if m == nil {
		return cardCommand{}, nil
	}
	rest := strings.TrimSpace(line[len(m[0]):])
	switch m[1] {
	case "tc-off":
		return cardCommand{kind: cardsOff}, nil
	case "tc?":
		return cardCommand{kind: cardsHelp}, nil
	case "tc-on":
	default:
		return cardCommand{}, nil
	}

	var d settings.Directives
	for rest != "" {
		tok, tail, _ := strings.Cut(rest, " ")
		arg := namedArg.FindStringSubmatch(tok)
		if arg == nil {
			break
		}
		switch key, val := arg[1], arg[2]; key {
		case "actions":
			d.Actions = &val
		case "members":
			d.Members = &val
		case "reset":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return cardCommand{}, fmt.Errorf("/tc-on reset=%q: want true or false", val)
			}
			d.Reset = b
		default:
			return cardCommand{}, fmt.Errorf("/tc-on: unknown argument %q (valid: actions, members, reset)", key)
		}
		rest = strings.TrimSpace(tail)
	}
	for _, name := range listSep.Split(rest, -1) {
		if name != "" {
			d.MemberList = append(d.MemberList, name)
		}
	}
	return cardCommand{kind: cardsOn, directives: d}, nil
}

const helpText = `Trigger cards
  Settings are saved per conversation. Cards only show in group conversations.
  /tc-on                  enable trigger cards
  /tc-off                 disable trigger cards
  /tc-on reset=true       restore the default settings

Default card actions
  click                   trigger the agent (sends it a nudge)
  shift + click           unmute the agent
  alt + click             mute the agent

Custom cards
  /tc-on members=mySet    one card per reply label of the set; add ::qr to a
                          label to run that reply on click instead
  /tc-on Name1, Name2     an explicit list (two or more names)

Custom actions
  /tc-on actions=mySet    label replies by modifier: "" click, c ctrl, s shift,
                          a alt, cs, ca, sa, csa for combinations
  In a reply, {{arg::name}} is the card's name, e.g. /trigger {{arg::name}}`
