package assistant

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"nebulaone/pkg/domain"
)

// Intent names the branch that answered a query.
type Intent string

const (
	IntentSearch     Intent = "search"
	IntentSummarize  Intent = "summarize"
	IntentDraft      Intent = "draft"
	IntentTasks      Intent = "tasks"
	IntentPrioritize Intent = "prioritize"
	IntentOrganize   Intent = "organize"
	IntentHelp       Intent = "help"
)

const (
	defaultScope = 5
	topPriority  = 5
	planPriority = 3
)

// QueryResult is the assistant's answer to a free-text query.
type QueryResult struct {
	Intent         Intent               `json:"intent"`
	Response       string               `json:"response"`
	RelatedThreads []domain.EmailThread `json:"relatedThreads,omitempty"`
}

// HelpMessage is returned when no intent matches.
const HelpMessage = `I can help you with your inbox. Try asking me to:
- find emails about a topic ("find project status")
- summarize all, unread or important emails
- draft a reply to "a subject" or to a person
- list the tasks and action items in your emails
- prioritize what to handle first
- organize your inbox toward inbox zero`

var stopwords = map[string]struct{}{
	"find": {}, "search": {}, "locate": {}, "for": {}, "the": {}, "a": {}, "an": {},
	"about": {}, "email": {}, "emails": {}, "me": {}, "my": {}, "show": {}, "with": {},
	"from": {}, "to": {}, "in": {}, "of": {}, "on": {}, "and": {}, "or": {}, "all": {},
	"any": {}, "is": {}, "are": {}, "that": {}, "this": {}, "please": {}, "related": {},
}

var (
	quotedRE = regexp.MustCompile(`["“]([^"”]+)["”]`)
	personRE = regexp.MustCompile(`(?i)\b(?:to|from)\s+([a-z][a-z'-]*)`)
)

// intentRules are checked top to bottom; the first match wins.
var intentRules = []struct {
	intent   Intent
	keywords []string
}{
	{IntentSearch, []string{"find", "search", "locate"}},
	{IntentSummarize, []string{"summar"}},
	{IntentDraft, []string{"draft", "write", "respond", "reply"}},
	{IntentTasks, []string{"todo", "to-do", "task", "action item"}},
	{IntentPrioritize, []string{"prioritiz", "priorit", "important", "first"}},
	{IntentOrganize, []string{"inbox zero", "clean", "organiz"}},
}

// ClassifyQuery returns the intent ProcessQuery would answer with.
func ClassifyQuery(query string) Intent {
	q := strings.ToLower(query)
	for _, rule := range intentRules {
		if containsAny(q, rule.keywords...) {
			return rule.intent
		}
	}
	return IntentHelp
}

// ProcessQuery answers a natural-language request over threads.
func ProcessQuery(query string, threads []domain.EmailThread, now time.Time) QueryResult {
	intent := ClassifyQuery(query)
	words := queryWords(query)
	switch intent {
	case IntentSearch:
		return searchThreads(words, threads)
	case IntentSummarize:
		return summarizeScope(words, threads)
	case IntentDraft:
		return draftReply(query, threads, now)
	case IntentTasks:
		return listTasks(words, threads)
	case IntentPrioritize:
		return prioritize(threads, now)
	case IntentOrganize:
		return organize(threads, now)
	default:
		return QueryResult{Intent: IntentHelp, Response: HelpMessage}
	}
}

func queryWords(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r > 127)
	})
}

func hasWord(words []string, w string) bool {
	for _, x := range words {
		if x == w {
			return true
		}
	}
	return false
}

// searchThreads keeps threads with a keyword in the subject, or with every
// keyword somewhere in the thread. Subject matches rank first.
func searchThreads(words []string, threads []domain.EmailThread) QueryResult {
	var keywords []string
	for _, w := range words {
		if _, stop := stopwords[w]; !stop {
			keywords = append(keywords, w)
		}
	}
	if len(keywords) == 0 {
		return QueryResult{Intent: IntentSearch, Response: `What should I search for? Try "find emails about budget".`}
	}

	type hit struct {
		thread    domain.EmailThread
		inSubject int
		total     int
	}
	var hits []hit
	for _, t := range threads {
		haystack := searchText(t)
		subject := strings.ToLower(t.Subject)
		h := hit{thread: t}
		for _, k := range keywords {
			if strings.Contains(haystack, k) {
				h.total++
			}
			if strings.Contains(subject, k) {
				h.inSubject++
			}
		}
		if h.inSubject > 0 || h.total == len(keywords) {
			hits = append(hits, h)
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].inSubject != hits[j].inSubject {
			return hits[i].inSubject > hits[j].inSubject
		}
		return hits[i].total > hits[j].total
	})

	phrase := strings.Join(keywords, " ")
	if len(hits) == 0 {
		return QueryResult{Intent: IntentSearch, Response: fmt.Sprintf("I couldn't find any emails matching %q.", phrase)}
	}
	related := make([]domain.EmailThread, len(hits))
	var b strings.Builder
	fmt.Fprintf(&b, "I found %d email %s matching %q:", len(hits), plural(len(hits), "thread", "threads"), phrase)
	for i, h := range hits {
		related[i] = h.thread
		fmt.Fprintf(&b, "\n- %s%s", h.thread.Subject, fromClause(h.thread))
	}
	return QueryResult{Intent: IntentSearch, Response: b.String(), RelatedThreads: related}
}

func searchText(t domain.EmailThread) string {
	var b strings.Builder
	b.WriteString(t.Subject)
	for _, p := range threadParticipants(t) {
		b.WriteString("\n" + p.Name)
	}
	for _, e := range t.Emails {
		b.WriteString("\n" + e.Subject + "\n" + e.Body + "\n" + e.From.Name)
	}
	return strings.ToLower(b.String())
}

func fromClause(t domain.EmailThread) string {
	if e, ok := t.LatestEmail(); ok && e.From.Name != "" {
		return fmt.Sprintf(" (from %s)", e.From.Name)
	}
	return ""
}

// scopeThreads narrows threads by the words all, unread or important;
// otherwise it keeps the most recent few.
func scopeThreads(words []string, threads []domain.EmailThread) ([]domain.EmailThread, string) {
	switch {
	case hasWord(words, "all"):
		return threads, "all"
	case hasWord(words, "unread"):
		return filterThreads(threads, func(t domain.EmailThread) bool { return !t.IsRead }), "unread"
	case hasWord(words, "important"):
		return filterThreads(threads, func(t domain.EmailThread) bool { return t.IsImportant }), "important"
	default:
		return mostRecent(threads, defaultScope), "recent"
	}
}

func filterThreads(threads []domain.EmailThread, keep func(domain.EmailThread) bool) []domain.EmailThread {
	var out []domain.EmailThread
	for _, t := range threads {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

func mostRecent(threads []domain.EmailThread, n int) []domain.EmailThread {
	sorted := append([]domain.EmailThread(nil), threads...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LastActivity().After(sorted[j].LastActivity())
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func summarizeScope(words []string, threads []domain.EmailThread) QueryResult {
	scoped, label := scopeThreads(words, threads)
	if len(scoped) == 0 {
		return QueryResult{Intent: IntentSummarize, Response: fmt.Sprintf("There are no %s emails to summarize.", label)}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Here's a summary of %d %s email %s:", len(scoped), label, plural(len(scoped), "thread", "threads"))
	for _, t := range scoped {
		summary := t.AISummary
		if summary == "" {
			summary = SummarizeThread(t).Summary
		}
		fmt.Fprintf(&b, "\n- %s: %s", t.Subject, summary)
	}
	return QueryResult{Intent: IntentSummarize, Response: b.String(), RelatedThreads: scoped}
}

func draftReply(query string, threads []domain.EmailThread, now time.Time) QueryResult {
	target, ok := replyTarget(query, threads)
	if !ok {
		return QueryResult{Intent: IntentDraft, Response: "There are no emails to reply to."}
	}
	latest, ok := target.LatestEmail()
	if !ok {
		return QueryResult{Intent: IntentDraft, Response: fmt.Sprintf("The thread %q has no emails to reply to.", target.Subject)}
	}
	return QueryResult{
		Intent:         IntentDraft,
		Response:       fmt.Sprintf("Here's a draft reply to %q:\n\n%s", target.Subject, GenerateReply(latest, now)),
		RelatedThreads: []domain.EmailThread{target},
	}
}

// replyTarget resolves by quoted subject, then "to/from NAME", then the
// newest unread or important thread, then the newest thread.
func replyTarget(query string, threads []domain.EmailThread) (domain.EmailThread, bool) {
	if len(threads) == 0 {
		return domain.EmailThread{}, false
	}
	if m := quotedRE.FindStringSubmatch(query); m != nil {
		want := strings.ToLower(strings.TrimSpace(m[1]))
		for _, t := range mostRecent(threads, len(threads)) {
			if strings.Contains(strings.ToLower(t.Subject), want) {
				return t, true
			}
		}
	}
	for _, m := range personRE.FindAllStringSubmatch(query, -1) {
		name := strings.ToLower(m[1])
		for _, t := range mostRecent(threads, len(threads)) {
			if mentionsPerson(t, name) {
				return t, true
			}
		}
	}
	recent := mostRecent(threads, len(threads))
	for _, t := range recent {
		if !t.IsRead || t.IsImportant {
			return t, true
		}
	}
	return recent[0], true
}

func mentionsPerson(t domain.EmailThread, name string) bool {
	for _, p := range threadParticipants(t) {
		if isSelf(p) {
			continue
		}
		if strings.Contains(strings.ToLower(p.Name), name) || strings.HasPrefix(strings.ToLower(p.Email), name) {
			return true
		}
	}
	return false
}

func listTasks(words []string, threads []domain.EmailThread) QueryResult {
	scoped, label := scopeThreads(words, threads)
	tasks := ExtractTasksFromThreads(scoped)
	if len(tasks) == 0 {
		return QueryResult{Intent: IntentTasks, Response: fmt.Sprintf("I didn't find any action items in your %s emails.", label), RelatedThreads: scoped}
	}
	subjects := make(map[string]string, len(scoped))
	for _, t := range scoped {
		subjects[t.ID] = t.Subject
	}
	var b strings.Builder
	fmt.Fprintf(&b, "I found %d action %s in your %s emails:", len(tasks), plural(len(tasks), "item", "items"), label)
	for _, task := range tasks {
		fmt.Fprintf(&b, "\n- [%s] %s (from %q)", strings.ToUpper(string(task.Priority)), task.Title, subjects[task.EmailThreadID])
	}
	return QueryResult{Intent: IntentTasks, Response: b.String(), RelatedThreads: scoped}
}

func prioritize(threads []domain.EmailThread, now time.Time) QueryResult {
	if len(threads) == 0 {
		return QueryResult{Intent: IntentPrioritize, Response: "Your inbox is empty."}
	}
	top := PrioritizeEmails(threads, now)
	if len(top) > topPriority {
		top = top[:topPriority]
	}
	var b strings.Builder
	b.WriteString("Here's what to handle first:")
	for i, t := range top {
		fmt.Fprintf(&b, "\n%d. %s%s", i+1, t.Subject, fromClause(t))
	}
	return QueryResult{Intent: IntentPrioritize, Response: b.String(), RelatedThreads: top}
}

func organize(threads []domain.EmailThread, now time.Time) QueryResult {
	open := filterThreads(threads, func(t domain.EmailThread) bool { return !t.IsCompleted })
	top := PrioritizeEmails(open, now)
	if len(top) > planPriority {
		top = top[:planPriority]
	}
	quick := filterThreads(open, func(t domain.EmailThread) bool {
		e, ok := t.LatestEmail()
		return ok && !isSelf(e.From) && strings.Contains(e.Body, "?")
	})
	review := filterThreads(open, func(t domain.EmailThread) bool { return !t.IsRead || t.IsImportant })
	done := len(threads) - len(open)

	subjects := make([]string, len(top))
	for i, t := range top {
		subjects[i] = t.Subject
	}
	highPriority := "nothing urgent"
	if len(subjects) > 0 {
		highPriority = strings.Join(subjects, "; ")
	}

	var b strings.Builder
	b.WriteString("Here's a plan to reach inbox zero:")
	fmt.Fprintf(&b, "\n1. Handle the top %d priority %s first: %s.", len(top), plural(len(top), "thread", "threads"), highPriority)
	fmt.Fprintf(&b, "\n2. Send quick replies to %d %s waiting on an answer.", len(quick), plural(len(quick), "thread", "threads"))
	fmt.Fprintf(&b, "\n3. Review %d unread or important %s.", len(review), plural(len(review), "thread", "threads"))
	fmt.Fprintf(&b, "\n4. Archive the %d %s already marked done.", done, plural(done, "thread", "threads"))
	b.WriteString("\n5. Turn the remaining action items into tasks and mark each thread complete.")
	return QueryResult{Intent: IntentOrganize, Response: b.String(), RelatedThreads: top}
}
