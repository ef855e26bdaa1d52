package rulebased

import (
	"strings"

	"github.com/MrWong99/livenote/pkg/provider/nlp"
)

// closedClass holds English function words with a fixed tag.
var closedClass = map[string]nlp.POS{}

// openClass holds frequent content words whose suffix gives no usable hint.
var openClass = map[string]nlp.POS{}

func init() {
	add := func(m map[string]nlp.POS, pos nlp.POS, words string) {
		for _, w := range strings.Fields(words) {
			m[w] = pos
		}
	}
	add(closedClass, nlp.DET, `a an the this that these those each every some any no
		another either neither all both such what which whose`)
	add(closedClass, nlp.ADP, `of in on at by for with about against between into through
		during before after above below to from up down out off over under across
		along around behind beyond near onto toward towards upon within without via per
		like than since until`)
	add(closedClass, nlp.CCONJ, `and or but nor yet plus`)
	add(closedClass, nlp.SCONJ, `if because although though while whereas unless whether
		once so`)
	add(closedClass, nlp.PRON, `i me my mine myself you your yours yourself yourselves he
		him his himself she her hers herself it its itself we us our ours ourselves
		they them their theirs themselves who whom someone something anyone anything
		everyone everything nobody nothing somebody anybody everybody one`)
	add(closedClass, nlp.PART, `not n't 's to`)
	add(closedClass, nlp.AUX, `be am is are was were been being have has had having do
		does did will would shall should can could may might must 'm 're 've 'll 'd
		isn't aren't wasn't weren't don't doesn't didn't won't wouldn't can't couldn't
		shouldn't haven't hasn't hadn't`)
	add(closedClass, nlp.ADV, `very too also just only even still already again ever never
		always often sometimes usually now then here there today tomorrow yesterday
		soon later how when where why really quite rather almost well maybe
		perhaps actually probably`)
	add(closedClass, nlp.INTJ, `oh yeah yes hey hi hello okay ok wow please thanks um uh
		er ah hmm`)
	add(closedClass, nlp.NUM, `zero one two three four five six seven eight nine ten
		eleven twelve twenty thirty forty fifty hundred thousand million billion`)

	add(openClass, nlp.VERB, `say said tell told ask asked make made take took taken get got
		go went gone come came see saw seen know knew known think thought give gave
		given find found use work call try need feel become became leave left put mean
		keep let begin began seem help show hear heard play run ran move live believe
		bring brought happen write wrote sit stand lose lost pay meet include continue
		set learn change lead understand watch follow stop create speak read allow add
		spend grow open walk win offer remember love consider appear buy wait serve die
		send expect build stay fall cut reach kill remain suggest raise pass sell
		require report decide pull announce launch release talk look want`)
	add(openClass, nlp.ADJ, `new good great big small large long little old young high low
		important different early late public bad same able best better free full
		real sure clear whole hard major strong possible special easy recent certain
		personal open red blue green black white true false happy simple local
		national social political economic financial global digital final main next
		last first second third past hot cold`)
	add(openClass, nlp.NOUN, `time year people way day man woman thing child world life
		hand part place case week company system program question work government
		number night point home water room mother area money story fact month lot
		right study book eye job word business issue side kind head house service
		friend father power hour game line end member law car city community name
		president team minute idea kid body information back parent face others
		level office door health person art war history party result morning reason
		research girl guy moment air teacher force education product market news`)
}

// modals are auxiliaries followed by a bare verb.
var modals = map[string]struct{}{}

// verbCues precede a bare verb unless the word hints otherwise.
var verbCues = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`will would shall should can could may might must 'll 'd
		won't wouldn't can't couldn't shouldn't`) {
		modals[w] = struct{}{}
	}
	for _, w := range strings.Fields(`to i we you they`) {
		verbCues[w] = struct{}{}
	}
}

// irregular maps inflected forms to their lemma.
var irregular = map[string]string{
	"am": "be", "is": "be", "are": "be", "was": "be", "were": "be", "been": "be", "being": "be",
	"has": "have", "had": "have", "having": "have",
	"does": "do", "did": "do", "done": "do",
	"said": "say", "told": "tell", "made": "make", "took": "take", "taken": "take",
	"got": "get", "went": "go", "gone": "go", "came": "come", "saw": "see", "seen": "see",
	"knew": "know", "known": "know", "thought": "think", "gave": "give", "given": "give",
	"found": "find", "became": "become", "left": "leave", "began": "begin", "heard": "hear",
	"ran": "run", "brought": "bring", "wrote": "write", "lost": "lose", "built": "build",
	"bought": "buy", "sold": "sell", "paid": "pay", "met": "meet", "sent": "send",
	"men": "man", "women": "woman", "children": "child", "people": "people", "mice": "mouse",
	"feet": "foot", "teeth": "tooth", "geese": "goose", "data": "data", "news": "news",
}

// stopwords is a compact English stop list.
var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`a about above after again against all almost also am an
		and another any are around as at back be because been before being below
		between both but by can could did do does doing done down during each either
		else enough even ever every few for from further get go had has have having he
		her here hers herself him himself his how however i if in into is it its itself
		just keep last least less made make many may me might mine more most mostly
		much must my myself neither never next no nobody none nor not nothing now of
		off often on once one only or other others otherwise our ours ourselves out
		over own per perhaps please put quite rather re really regarding same say see
		seem seemed seems several she should show since so some somehow someone
		something sometime sometimes somewhere still such take than that the their
		theirs them themselves then there these they this those though through thus to
		together too toward towards under until up upon us used using various very
		via was we well were what whatever when whence whenever where whether which
		while who whoever whole whom whose why will with within without would yet you
		your yours yourself yourselves um uh er ah oh yeah okay ok n't 's 'm 're 've
		'll 'd`) {
		stopwords[w] = struct{}{}
	}
}

// suffixTag guesses a tag for an unknown lower-case word from its ending.
func suffixTag(w string) (nlp.POS, bool) {
	if len(w) < 4 {
		return "", false
	}
	switch {
	case strings.HasSuffix(w, "ly"):
		return nlp.ADV, true
	case strings.HasSuffix(w, "ing"), strings.HasSuffix(w, "ed"), strings.HasSuffix(w, "ize"),
		strings.HasSuffix(w, "ise"), strings.HasSuffix(w, "ify"):
		return nlp.VERB, true
	case strings.HasSuffix(w, "ous"), strings.HasSuffix(w, "ful"), strings.HasSuffix(w, "ive"),
		strings.HasSuffix(w, "able"), strings.HasSuffix(w, "ible"), strings.HasSuffix(w, "ical"),
		strings.HasSuffix(w, "less"), strings.HasSuffix(w, "ish"), strings.HasSuffix(w, "ary"),
		strings.HasSuffix(w, "ic"), strings.HasSuffix(w, "al"):
		return nlp.ADJ, true
	case strings.HasSuffix(w, "tion"), strings.HasSuffix(w, "sion"), strings.HasSuffix(w, "ment"),
		strings.HasSuffix(w, "ness"), strings.HasSuffix(w, "ity"), strings.HasSuffix(w, "ism"),
		strings.HasSuffix(w, "ist"), strings.HasSuffix(w, "ship"), strings.HasSuffix(w, "ance"),
		strings.HasSuffix(w, "ence"), strings.HasSuffix(w, "er"), strings.HasSuffix(w, "or"):
		return nlp.NOUN, true
	}
	return "", false
}

// lemmatize returns the lower-case base form of w for the given tag.
func lemmatize(w string, pos nlp.POS) string {
	if l, ok := irregular[w]; ok {
		return l
	}
	switch pos {
	case nlp.NOUN:
		return singular(w)
	case nlp.VERB, nlp.AUX:
		return verbBase(w)
	}
	return w
}

func singular(w string) string {
	switch {
	case len(w) <= 3:
		return w
	case strings.HasSuffix(w, "ies"):
		return w[:len(w)-3] + "y"
	case strings.HasSuffix(w, "sses"), strings.HasSuffix(w, "xes"),
		strings.HasSuffix(w, "ches"), strings.HasSuffix(w, "shes"):
		return w[:len(w)-2]
	case strings.HasSuffix(w, "ss"), strings.HasSuffix(w, "us"), strings.HasSuffix(w, "is"):
		return w
	case strings.HasSuffix(w, "s"):
		return w[:len(w)-1]
	}
	return w
}

func verbBase(w string) string {
	try := func(stem string) (string, bool) {
		if _, ok := openClass[stem]; ok {
			return stem, true
		}
		if _, ok := openClass[stem+"e"]; ok {
			return stem + "e", true
		}
		if n := len(stem); n > 2 && stem[n-1] == stem[n-2] {
			if _, ok := openClass[stem[:n-1]]; ok {
				return stem[:n-1], true
			}
		}
		return "", false
	}
	for _, suf := range []string{"ing", "ed", "es", "s"} {
		if strings.HasSuffix(w, suf) && len(w) > len(suf)+1 {
			if base, ok := try(w[:len(w)-len(suf)]); ok {
				return base
			}
		}
	}
	switch {
	case strings.HasSuffix(w, "ied"):
		return w[:len(w)-3] + "y"
	case strings.HasSuffix(w, "ing") && len(w) > 5:
		return w[:len(w)-3]
	case strings.HasSuffix(w, "ed") && len(w) > 4:
		return w[:len(w)-2]
	}
	return w
}
