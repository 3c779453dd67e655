package fetchsession

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kumoreads/kumo/pkg/fetchcache"
	"github.com/kumoreads/kumo/pkg/models"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

// Session is a browsing identity bound to one external site. Go resolves a
// path against the session's base URL, consults the cache, and only then
// fetches: directly when an identity exists, via the challenge solver when
// it doesn't.
type Session struct {
	manager  *Manager
	id       string
	baseURL  string
	identity *models.FetchSession
}

func (s *Session) ID() string {
	return s.id
}

// Go fetches a page. Cache hits return without any network call. A direct
// fetch that fails or comes back non-2xx falls back to one bootstrap attempt
// through the solver, replacing the stored identity.
func (s *Session) Go(ctx context.Context, path string) (*Page, error) {
	target, err := s.resolveURL(path)
	if err != nil {
		return nil, err
	}

	log := s.manager.log.Root(logger.Data{"session_id": s.id, "url": target})
	now := s.manager.clock()

	hourKey := fetchcache.HourKey(target, now)
	if entry, err := s.manager.cache.Get(ctx, hourKey); err != nil {
		return nil, err
	} else if entry != nil {
		return newPage(target, entry.Body, entry.StatusCode, log)
	}

	if s.identity == nil {
		// A previous bootstrap for this session may still be cached even if
		// the identity row was invalidated.
		if entry, err := s.manager.cache.Get(ctx, fetchcache.SessionKey(s.id, target)); err != nil {
			return nil, err
		} else if entry != nil {
			return newPage(target, entry.Body, entry.StatusCode, log)
		}
		return s.bootstrap(ctx, target, now, log)
	}

	body, status, err := s.direct(ctx, target)
	if err != nil || status >= 400 {
		if err != nil {
			log.Err(err).Warn("direct fetch failed, falling back to solver")
		} else {
			log.Warn("direct fetch rejected, falling back to solver", logger.Data{"status": status})
		}
		return s.bootstrap(ctx, target, now, log)
	}

	if err := s.manager.cache.Put(ctx, hourKey, body, status); err != nil {
		return nil, err
	}

	return newPage(target, body, status, log)
}

// direct issues a plain GET replaying the stored identity.
func (s *Session) direct(ctx context.Context, target string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", 0, errors.WithStack(err)
	}
	req.Header.Set("User-Agent", s.identity.UserAgent)
	for _, c := range s.identity.Cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}

	resp, err := s.manager.client.Do(req)
	if err != nil {
		return "", 0, errors.Wrap(err, "direct fetch failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, errors.WithStack(err)
	}

	return string(body), resp.StatusCode, nil
}

// Download fetches a binary resource like a cover or page image. It replays
// the identity when one exists, but never caches the body and never goes
// through the solver; image CDNs don't sit behind the challenge.
func (s *Session) Download(ctx context.Context, path string) ([]byte, error) {
	target, err := s.resolveURL(path)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if s.identity != nil {
		req.Header.Set("User-Agent", s.identity.UserAgent)
		for _, c := range s.identity.Cookies {
			req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
		}
	}

	resp, err := s.manager.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "download failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, errors.Errorf("download of %s returned status %d", target, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	return data, errors.WithStack(err)
}

// bootstrap fetches through the challenge solver and persists the identity
// it establishes, replacing any previous one.
func (s *Session) bootstrap(ctx context.Context, target string, now time.Time, log logger.Logger) (*Page, error) {
	if s.manager.solver == nil {
		return nil, errors.New("no challenge solver configured")
	}

	result, err := s.manager.solver.Solve(ctx, target)
	if err != nil {
		return nil, errors.Wrap(err, "bootstrap fetch failed")
	}

	identity := &models.FetchSession{
		ID:        s.id,
		CreatedAt: now,
		UserAgent: result.UserAgent,
		Cookies:   result.Cookies,
	}
	if err := s.manager.saveIdentity(ctx, identity); err != nil {
		return nil, err
	}
	s.identity = identity

	// Bootstrap responses are cached under both the hour bucket and the
	// session-scoped key: the latter survives identity invalidation.
	if err := s.manager.cache.Put(ctx, fetchcache.HourKey(target, now), result.Body, result.Status); err != nil {
		return nil, err
	}
	if err := s.manager.cache.Put(ctx, fetchcache.SessionKey(s.id, target), result.Body, result.Status); err != nil {
		return nil, err
	}

	return newPage(target, result.Body, result.Status, log)
}

func (s *Session) resolveURL(path string) (string, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path, nil
	}
	if s.baseURL == "" {
		return "", errors.Errorf("relative path %q with no base URL", path)
	}

	base, err := url.Parse(s.baseURL)
	if err != nil {
		return "", errors.Wrapf(err, "invalid base URL %q", s.baseURL)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", errors.Wrapf(err, "invalid path %q", path)
	}
	return base.ResolveReference(ref).String(), nil
}
