package extractor

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// pageExtractor is one independent heuristic that returns candidate URLs from a page
type pageExtractor struct {
	name   string
	script string
}

var (
	ogVideoExtractor = pageExtractor{
		name: "og_video",
		script: `() => [...document.querySelectorAll(
			'meta[property="og:video"], meta[property="og:video:secure_url"], meta[property="og:video:url"]'
		)].map(m => m.content).filter(Boolean)`,
	}

	structuredDataExtractor = pageExtractor{
		name: "structured_data",
		script: `() => {
			const out = [];
			const visit = (node) => {
				if (!node || typeof node !== 'object') return;
				if (Array.isArray(node)) { node.forEach(visit); return; }
				if (typeof node.contentUrl === 'string') out.push(node.contentUrl);
				if (node.video) visit(node.video);
				if (node['@graph']) visit(node['@graph']);
			};
			document.querySelectorAll('script[type="application/ld+json"]').forEach(s => {
				try { visit(JSON.parse(s.textContent)); } catch (e) {}
			});
			return out;
		}`,
	}

	videoElementExtractor = pageExtractor{
		name: "video_element",
		script: `() => {
			const out = [];
			document.querySelectorAll('video').forEach(v => {
				if (v.currentSrc) out.push(v.currentSrc);
				if (v.src) out.push(v.src);
				v.querySelectorAll('source').forEach(s => s.src && out.push(s.src));
			});
			return out.filter(u => u.startsWith('http'));
		}`,
	}

	inlineScriptExtractor = pageExtractor{
		name: "inline_script",
		script: `() => {
			const out = [];
			const re = /"(?:video_url|playable_url|contentUrl)"\s*:\s*"([^"]+)"/g;
			document.querySelectorAll('script:not([src])').forEach(s => {
				for (const m of s.textContent.matchAll(re)) out.push(m[1]);
			});
			return out;
		}`,
	}

	dataBlobExtractor = pageExtractor{
		name: "data_blob",
		script: `() => {
			const out = [];
			const walk = (node, depth) => {
				if (!node || typeof node !== 'object' || depth > 12) return;
				for (const [k, v] of Object.entries(node)) {
					if ((k === 'video_url' || k === 'playable_url') && typeof v === 'string') out.push(v);
					else if (k === 'video_versions' && Array.isArray(v)) v.forEach(x => x && x.url && out.push(x.url));
					else walk(v, depth + 1);
				}
			};
			try { walk(window.__additionalData, 0); } catch (e) {}
			try { walk(window._sharedData, 0); } catch (e) {}
			try { walk(window.__NEXT_DATA__, 0); } catch (e) {}
			return out;
		}`,
	}

	ogImageExtractor = pageExtractor{
		name: "og_image",
		script: `() => [...document.querySelectorAll('meta[property="og:image"]')]
			.map(m => m.content).filter(Boolean)`,
	}

	articleImageExtractor = pageExtractor{
		name: "article_images",
		script: `() => {
			const pick = (img) => {
				if (img.srcset) {
					const best = img.srcset.split(',')
						.map(s => s.trim().split(/\s+/))
						.map(([u, w]) => [u, parseInt(w, 10) || 0])
						.sort((a, b) => b[1] - a[1])[0];
					if (best && best[0]) return best[0];
				}
				return img.currentSrc || img.src;
			};
			return [...document.querySelectorAll('article img, main img')]
				.map(pick).filter(u => u && u.startsWith('http'));
		}`,
	}

	descriptionExtractor = pageExtractor{
		name: "description",
		script: `() => {
			const meta = document.querySelector('meta[property="og:description"]')
				|| document.querySelector('meta[name="description"]');
			return [meta ? meta.content : '', document.title || ''].filter(Boolean);
		}`,
	}
)

// Heuristic orders; the first extractor yielding a usable URL wins
var (
	loginWallVideoExtractors = []pageExtractor{ogVideoExtractor, inlineScriptExtractor}
	videoExtractors          = []pageExtractor{ogVideoExtractor, structuredDataExtractor, videoElementExtractor, dataBlobExtractor, inlineScriptExtractor}
	photoExtractors          = []pageExtractor{ogImageExtractor, articleImageExtractor}
)

// firstMatch runs extractors in order and returns the cleaned URLs of the first that yields any
func firstMatch(ctx context.Context, page Page, extractors []pageExtractor, logger *slog.Logger) (string, []string) {
	for _, ex := range extractors {
		if ctx.Err() != nil {
			return "", nil
		}
		urls := runExtractor(ctx, page, ex, logger)
		if len(urls) > 0 {
			return ex.name, urls
		}
	}
	return "", nil
}

// collectAll runs every extractor and concatenates their cleaned URLs
func collectAll(ctx context.Context, page Page, extractors []pageExtractor, logger *slog.Logger) []string {
	var all []string
	for _, ex := range extractors {
		if ctx.Err() != nil {
			break
		}
		all = append(all, runExtractor(ctx, page, ex, logger)...)
	}
	return all
}

func runExtractor(ctx context.Context, page Page, ex pageExtractor, logger *slog.Logger) []string {
	raw, err := page.EvalStrings(ctx, ex.script)
	if err != nil {
		logger.Debug("Page extractor failed",
			"extractor", ex.name,
			"error", err)
		return nil
	}

	var urls []string
	for _, r := range raw {
		if u := decodeMediaURL(r); isMediaURL(u) {
			urls = append(urls, u)
		}
	}
	return urls
}

var jsonEscapeReplacer = strings.NewReplacer(
	`\u0026`, "&",
	`\u003d`, "=",
	`\u003D`, "=",
	`\u002F`, "/",
	`\u002f`, "/",
	`\/`, "/",
)

// decodeMediaURL undoes the JSON and HTML escaping found in embedded page data
func decodeMediaURL(s string) string {
	s = strings.TrimSpace(s)
	s = jsonEscapeReplacer.Replace(s)
	return html.UnescapeString(s)
}

func isMediaURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

var thumbnailSize = regexp.MustCompile(`(?i)(?:^|[/_.-])[sp](\d{2,4})x(\d{2,4})(?:[/_.-]|$)`)

// maxThumbnailEdge is the largest edge of a sized image variant still treated as a thumbnail
const maxThumbnailEdge = 320

// isThumbnail reports whether an image URL is a small preview or a profile picture
func isThumbnail(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	p := u.Path
	// Instagram profile pictures
	if strings.Contains(p, "/t51.2885-19/") {
		return true
	}
	for _, target := range []string{p, u.Query().Get("stp")} {
		for _, m := range thumbnailSize.FindAllStringSubmatch(target, -1) {
			w, _ := strconv.Atoi(m[1])
			h, _ := strconv.Atoi(m[2])
			if w <= maxThumbnailEdge && h <= maxThumbnailEdge {
				return true
			}
		}
	}
	return false
}

// selectPhotos drops thumbnails, deduplicates by path and caps the result, keeping discovery order
func selectPhotos(urls []string, limit int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, raw := range urls {
		if isThumbnail(raw) {
			continue
		}
		key := raw
		if u, err := url.Parse(raw); err == nil {
			// CDN variants of one image differ only in their signed query
			key = u.Host + u.Path
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, raw)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// isLoginWall reports whether the page the browser landed on is a login or challenge page
func isLoginWall(title, pageURL string) bool {
	t := strings.ToLower(title)
	if strings.Contains(t, "login") || strings.Contains(t, "log in") || strings.Contains(t, "sign in") {
		return true
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return false
	}
	p := strings.ToLower(u.Path)
	return strings.HasPrefix(p, "/accounts/login") || strings.HasPrefix(p, "/challenge") ||
		strings.Contains(p, "/login")
}
