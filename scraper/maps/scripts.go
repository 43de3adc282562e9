package maps

import (
	"encoding/json"
	"fmt"
)

const consentScript = `(function () {
  const selectors = [
    'button[aria-label="Accept all"]',
    'button[aria-label="I agree"]',
    'button[aria-label="Alles akzeptieren"]',
    'button[aria-label="Tout accepter"]',
    'form[action*="consent"] button'
  ];
  for (const sel of selectors) {
    const btn = document.querySelector(sel);
    if (btn) {
      btn.click();
      return true;
    }
  }
  return false;
})()`

// pageStateScript reports whether the results feed, a single place panel,
// the provider's "no results" notice, or none of them has rendered.
const pageStateScript = `(function () {
  if (document.querySelector('div[role="feed"]')) return 'feed';
  const h1 = document.querySelector('h1');
  if (h1 && h1.innerText.trim() && location.href.includes('/maps/place/')) return 'place';
  const main = document.querySelector('div[role="main"]');
  const text = main ? main.innerText || '' : '';
  if (text.includes("Google Maps can't find") || text.includes('No results found')) return 'empty';
  return '';
})()`

const feedSnapshotScript = `(function () {
  const feed = document.querySelector('div[role="feed"]');
  if (!feed) return {handles: [], endOfList: false};
  const handles = [];
  feed.querySelectorAll('a[href*="/maps/place/"]').forEach(function (a) {
    handles.push({href: a.href, label: a.getAttribute('aria-label') || ''});
  });
  const text = feed.innerText || '';
  const endOfList = !!feed.querySelector('span.HlvSq') ||
    text.includes("You've reached the end of the list") ||
    text.includes('reached the end of the list');
  return {handles: handles, endOfList: endOfList};
})()`

const scrollFeedScript = `(function () {
  const feed = document.querySelector('div[role="feed"]');
  if (!feed) return false;
  feed.scrollBy(0, feed.offsetHeight || 1000);
  return true;
})()`

const blockProbeScript = `(function () {
  const body = document.body ? document.body.innerText || '' : '';
  const frames = Array.from(document.querySelectorAll('iframe')).map(function (f) { return f.src || ''; });
  return {url: location.href, title: document.title || '', text: body.slice(0, 4000), frames: frames};
})()`

const detailScript = `(function () {
  const main = document.querySelector('div[role="main"]');
  const h1 = document.querySelector('h1');
  const name = h1 ? h1.innerText.trim() : '';
  const attr = function (sel, a) {
    const n = document.querySelector(sel);
    return n ? (n.getAttribute(a) || '') : '';
  };
  const text = function (sel) {
    const n = document.querySelector(sel);
    return n ? n.innerText.trim() : '';
  };
  let reviews = '';
  const stars = document.querySelector('span[aria-label*="stars"]') || document.querySelector('span[role="img"][aria-label*="star"]');
  if (stars && stars.parentElement) {
    const m = (stars.parentElement.innerText || '').match(/\(([^)]+)\)/);
    if (m) reviews = m[1];
  }
  if (!reviews) reviews = attr('span[aria-label*="reviews"]', 'aria-label');
  return {
    ready: !!main && name !== '' && !name.includes('Results'),
    href: location.href,
    name: name,
    rating: stars ? stars.getAttribute('aria-label') || '' : text('div.F7nice span[aria-hidden="true"]'),
    reviews: reviews,
    category: text('button[jsaction*="category"]'),
    address: attr('button[data-item-id="address"]', 'aria-label') || text('button[data-item-id="address"]'),
    phone: attr('button[data-item-id^="phone"]', 'aria-label') || attr('a[href^="tel:"]', 'href'),
    website: attr('a[data-item-id="authority"]', 'href') || attr('a[aria-label^="Website"]', 'href')
  };
})()`

// cardScript reads the summary card that holds the link to href.
func cardScript(href string) string {
	return fmt.Sprintf(`(function (target) {
  const link = Array.from(document.querySelectorAll('div[role="feed"] a[href*="/maps/place/"]'))
    .find(function (a) { return a.href === target; });
  if (!link) return {found: false};
  const card = link.closest('div.Nv2PK') || link.parentElement;
  const pick = function (sel) {
    const n = card.querySelector(sel);
    return n ? n.textContent.trim() : '';
  };
  const lines = Array.from(card.querySelectorAll('.W4Efsd > span, .W4Efsd > div > span'))
    .map(function (s) { return s.textContent.replace(/^[\s·]+/, '').trim(); })
    .filter(function (s) { return s !== '' && s !== '·'; });
  const site = card.querySelector('a[data-value="Website"], a[aria-label*="Website"]');
  const stars = card.querySelector('span[role="img"][aria-label*="star"]');
  return {
    found: true,
    name: link.getAttribute('aria-label') || pick('.qBF1Pd'),
    rating: pick('.MW4etd') || (stars ? stars.getAttribute('aria-label') : ''),
    reviews: pick('.UY7F9'),
    category: lines.length > 0 ? lines[0] : '',
    address: lines.length > 1 ? lines[1] : '',
    phone: pick('.UsdlK'),
    website: site ? site.href : ''
  };
})(%s)`, jsString(href))
}

// clickScript opens the detail panel of the listing linked to href.
func clickScript(href string) string {
	return fmt.Sprintf(`(function (target) {
  const link = Array.from(document.querySelectorAll('div[role="feed"] a[href*="/maps/place/"]'))
    .find(function (a) { return a.href === target; });
  if (!link) return false;
  link.scrollIntoView({block: 'center'});
  link.click();
  return true;
})(%s)`, jsString(href))
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
