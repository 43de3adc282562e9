package services

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"maps-scraper/models"
)

const maxEmails = 3

var (
	emailRegexp = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRegexp = regexp.MustCompile(`\+?\(?\d{1,4}\)?[\s.\-]?\d{2,4}[\s.\-]?\d{3,4}[\s.\-]?\d{3,4}`)

	socialPatterns = []struct {
		platform string
		re       *regexp.Regexp
	}{
		{"instagram", regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?\binstagram\.com/([a-z0-9_.]+)/?`)},
		{"facebook", regexp.MustCompile(`(?i)(?:https?://)?(?:www\.|m\.|web\.)?\bfacebook\.com/([a-z0-9.]+)/?`)},
		{"twitter", regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?\b(?:twitter\.com|x\.com)/([a-z0-9_]+)/?`)},
		{"whatsapp", regexp.MustCompile(`(?i)(?:https?://)?\b(?:wa\.me|api\.whatsapp\.com|chat\.whatsapp\.com)/([a-z0-9+]+)/?`)},
		{"telegram", regexp.MustCompile(`(?i)(?:https?://)?\b(?:t\.me|telegram\.me)/([a-z0-9_]+)/?`)},
		{"messenger", regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?\b(?:m\.me|messenger\.com)/([a-z0-9.]+)/?`)},
		{"line", regexp.MustCompile(`(?i)(?:https?://)?\bline\.me/(?:R/)?ti/p/([a-z0-9@~_\-]+)/?`)},
	}

	whatsappWidgetPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)wa\.me/(\d+)`),
		regexp.MustCompile(`(?i)whatsappNumber["\s:]+["']?(\+?[\d\s\-]{10,})`),
	}
	messengerWidgetPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)m\.me/([a-z0-9.]+)`),
		regexp.MustCompile(`(?i)fb-messengermessageus[^>]*page_id[="\s]+["']?(\d+)`),
		regexp.MustCompile(`(?i)messenger_app_id["\s:]+["']?(\d+)`),
	}

	// handles that are site paths rather than accounts
	reservedHandles = map[string]struct{}{
		"sharer": {}, "sharer.php": {}, "share": {}, "intent": {}, "plugins": {},
		"tr": {}, "dialog": {}, "home.php": {}, "login": {}, "p": {}, "explore": {},
		"reel": {}, "hashtag": {}, "i": {}, "policies": {}, "privacy": {},
		"pages": {}, "groups": {},
	}

	emailBlacklist = []string{
		"example.com", "domain.com", "email.com", "yourdomain", "wix", "wordpress",
		"sentry", "cloudflare", "@2x", ".png", ".jpg", ".webp", ".svg",
	}

	// websites that are directories or booking platforms, not the place's own site
	platformDomains = []string{
		"facebook.com", "instagram.com", "twitter.com", "x.com", "wa.me", "t.me",
		"m.me", "line.me", "tripadvisor.", "booking.com", "agoda.com", "foodpanda",
		"grab.com", "linktr.ee",
	}
)

// ContactSet is what one website visit yielded.
type ContactSet struct {
	Phones  []string
	Emails  []string
	Socials []models.Social
}

// Empty reports whether nothing was found.
func (c ContactSet) Empty() bool {
	return len(c.Phones) == 0 && len(c.Emails) == 0 && len(c.Socials) == 0
}

// ExtractContacts parses a page for phones, emails and social handles from
// anchors, meta tags, chat widgets and footer text. Malformed HTML yields
// whatever could be read; it never fails.
func ExtractContacts(html string) ContactSet {
	var set ContactSet
	phones := newOrderedSet()
	emails := newOrderedSet()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err == nil {
		doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
			href := strings.TrimSpace(sel.AttrOr("href", ""))
			lower := strings.ToLower(href)
			switch {
			case strings.HasPrefix(lower, "mailto:"):
				emails.add(cleanEmail(href[len("mailto:"):]))
			case strings.HasPrefix(lower, "tel:"):
				phones.add(NormalisePhone(href))
			default:
				if s, ok := SocialFromURL(href); ok {
					set.Socials = append(set.Socials, s)
				}
			}
		})

		doc.Find("meta").Each(func(_ int, sel *goquery.Selection) {
			key := strings.ToLower(sel.AttrOr("property", sel.AttrOr("name", "")))
			content := strings.TrimSpace(sel.AttrOr("content", ""))
			if content == "" {
				return
			}
			switch key {
			case "twitter:site", "twitter:creator":
				handle := strings.TrimPrefix(content, "@")
				if validHandle(handle) {
					set.Socials = append(set.Socials, models.Social{Platform: "twitter", Handle: handle})
				}
			case "og:email", "email":
				emails.add(cleanEmail(content))
			case "og:phone_number", "telephone":
				phones.add(NormalisePhone(content))
			case "article:publisher", "og:see_also":
				if s, ok := SocialFromURL(content); ok {
					set.Socials = append(set.Socials, s)
				}
			}
		})

		footer := doc.Find("footer, [class*=footer], [id*=footer], address, [class*=contact]").Text()
		for _, p := range phoneRegexp.FindAllString(footer, -1) {
			phones.add(NormalisePhone(p))
		}
		for _, e := range emailRegexp.FindAllString(footer, -1) {
			emails.add(cleanEmail(e))
		}
	}

	for _, e := range emailRegexp.FindAllString(html, -1) {
		emails.add(cleanEmail(e))
	}
	for _, s := range socialsFromText(html) {
		set.Socials = append(set.Socials, s)
	}

	set.Phones = phones.items
	set.Emails = emails.items
	if len(set.Emails) > maxEmails {
		set.Emails = set.Emails[:maxEmails]
	}
	set.Socials = models.MergeSocials(nil, set.Socials)
	return set
}

// SocialFromURL maps a link to a known social platform handle. The link's
// host must be the platform itself.
func SocialFromURL(link string) (models.Social, bool) {
	link = strings.TrimSpace(link)
	if link == "" {
		return models.Social{}, false
	}
	if !strings.Contains(link, "://") {
		link = "https://" + strings.TrimLeft(link, "/")
	}
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return models.Social{}, false
	}
	candidate := strings.ToLower(u.Host) + u.EscapedPath()

	for _, p := range socialPatterns {
		loc := p.re.FindStringSubmatchIndex(candidate)
		if loc == nil || loc[0] != 0 {
			continue
		}
		handle := strings.TrimSuffix(candidate[loc[2]:loc[3]], ".")
		if validHandle(handle) {
			return models.Social{Platform: p.platform, Handle: handle}, true
		}
	}
	return models.Social{}, false
}

// IsPlatformURL reports whether a website is a social or booking platform
// page rather than the place's own site.
func IsPlatformURL(website string) bool {
	website = strings.TrimSpace(website)
	if !strings.Contains(website, "://") {
		website = "https://" + website
	}
	u, err := url.Parse(website)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, d := range platformDomains {
		if strings.HasSuffix(d, ".") || !strings.Contains(d, ".") {
			if strings.Contains(host, d) {
				return true
			}
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func socialsFromText(html string) []models.Social {
	var out []models.Social
	found := make(map[string]bool)

	for _, p := range socialPatterns {
		for _, m := range p.re.FindAllStringSubmatch(html, -1) {
			if validHandle(m[1]) {
				out = append(out, models.Social{Platform: p.platform, Handle: strings.TrimSuffix(m[1], ".")})
				found[p.platform] = true
				break
			}
		}
	}

	if !found["whatsapp"] {
		for _, re := range whatsappWidgetPatterns {
			if m := re.FindStringSubmatch(html); len(m) == 2 {
				phone := strings.TrimPrefix(strings.NewReplacer(" ", "", "-", "").Replace(m[1]), "+")
				if len(phone) >= 9 {
					out = append(out, models.Social{Platform: "whatsapp", Handle: phone})
					break
				}
			}
		}
	}
	if !found["messenger"] {
		for _, re := range messengerWidgetPatterns {
			if m := re.FindStringSubmatch(html); len(m) == 2 && validHandle(m[1]) {
				out = append(out, models.Social{Platform: "messenger", Handle: m[1]})
				break
			}
		}
	}
	return out
}

func validHandle(h string) bool {
	h = strings.TrimSuffix(strings.TrimSpace(h), ".")
	if h == "" {
		return false
	}
	_, reserved := reservedHandles[strings.ToLower(h)]
	return !reserved
}

func cleanEmail(raw string) string {
	clean := strings.TrimSpace(raw)
	if idx := strings.Index(clean, "?"); idx != -1 {
		clean = clean[:idx]
	}
	clean = strings.Trim(clean, "<>()[]{}.,;:\"'` ")
	match := emailRegexp.FindString(clean)
	if match == "" {
		return ""
	}
	match = strings.ToLower(match)
	for _, bad := range emailBlacklist {
		if strings.Contains(match, bad) {
			return ""
		}
	}
	return match
}

// orderedSet keeps first-seen order and drops empties.
type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet { return &orderedSet{seen: make(map[string]struct{})} }

func (s *orderedSet) add(v string) {
	if v == "" {
		return
	}
	if _, dup := s.seen[v]; dup {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}

var contactLinkHints = []string{"contact", "kontakt", "contacto", "about", "impressum", "hubungi"}

// ContactLinks returns same-host links that look like contact or about
// pages, resolved against pageURL, in document order.
func ContactLinks(html, pageURL string, limit int) []string {
	base, err := url.Parse(pageURL)
	if err != nil || base.Host == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	links := newOrderedSet()
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		lower := strings.ToLower(href)
		if href == "" || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") || strings.HasPrefix(lower, "#") {
			return true
		}
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		abs := base.ResolveReference(ref)
		if !strings.EqualFold(strings.TrimPrefix(abs.Hostname(), "www."), strings.TrimPrefix(base.Hostname(), "www.")) {
			return true
		}
		abs.Fragment = ""
		if abs.String() == base.String() {
			return true
		}

		text := strings.ToLower(strings.TrimSpace(sel.Text()))
		target := strings.ToLower(abs.Path)
		for _, hint := range contactLinkHints {
			if strings.Contains(text, hint) || strings.Contains(target, hint) {
				links.add(abs.String())
				break
			}
		}
		return limit <= 0 || len(links.items) < limit
	})
	return links.items
}
