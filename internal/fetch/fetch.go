// Package fetch implements the end-to-end clone pipeline: negotiate refs
// over the smart HTTP protocol, receive a packfile, resolve its deltas into
// the object store, and materialize the result as a working tree. Each
// stage is wrapped in its own OpenTelemetry span and updates the shared
// Prometheus metrics, the way cmd/gothub wrapped its HTTP handlers.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mustafaquraish/minigit/internal/config"
	"github.com/mustafaquraish/minigit/internal/credstore"
	"github.com/mustafaquraish/minigit/internal/deltaresolve"
	"github.com/mustafaquraish/minigit/internal/githash"
	"github.com/mustafaquraish/minigit/internal/gitobject"
	"github.com/mustafaquraish/minigit/internal/gitpack"
	"github.com/mustafaquraish/minigit/internal/gitrefs"
	"github.com/mustafaquraish/minigit/internal/giterrors"
	"github.com/mustafaquraish/minigit/internal/objstore"
	"github.com/mustafaquraish/minigit/internal/pktline"
	"github.com/mustafaquraish/minigit/internal/provenance"
	"github.com/mustafaquraish/minigit/internal/worktree"
)

const masterRef = "refs/heads/master"

// Credentials are basic-auth credentials the caller supplies; the driver
// never invents or prompts for them.
type Credentials struct {
	Username string
	Password string
}

// Driver runs clones against a single remote, using cfg for timeouts and
// telemetry settings.
type Driver struct {
	cfg     *config.Config
	client  *http.Client
	metrics *Metrics
	creds   *credstore.Store // optional; nil disables caching
	prov    *provenance.DB   // optional; nil disables provenance logging
}

// Option customizes a Driver beyond cfg's defaults.
type Option func(*Driver)

// WithCredentialCache enables caching resolved credentials at path,
// encrypted with a key derived from secret.
func WithCredentialCache(path, secret string, ttl time.Duration) Option {
	return func(d *Driver) { d.creds = credstore.Open(path, secret, ttl) }
}

// WithProvenance enables recording each completed fetch to db.
func WithProvenance(db *provenance.DB) Option {
	return func(d *Driver) { d.prov = db }
}

// WithMetrics overrides the default process-wide Metrics instance.
func WithMetrics(m *Metrics) Option {
	return func(d *Driver) { d.metrics = m }
}

func NewDriver(cfg *config.Config, opts ...Option) *Driver {
	d := &Driver{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.FetchTimeout()},
		metrics: DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Result summarizes a completed clone, for logging and provenance.
type Result struct {
	Hash          githash.Hash
	RefName       string
	ObjectCount   int
	DeltaCount    int
	PackBytes     int
	CheckoutFiles int
}

// Clone performs the full 4.H pipeline against remoteURL, populating gitDir
// (expected to already contain an initialized ".git" skeleton) and
// materializing the working tree at workDir.
func (d *Driver) Clone(ctx context.Context, remoteURL, gitDir, workDir string, creds Credentials) (*Result, error) {
	start := time.Now()
	correlationID := uuid.NewString()
	log := slog.With("correlation_id", correlationID, "remote", remoteURL)

	ctx, span := tracer().Start(ctx, "fetch.Clone")
	defer span.End()
	span.SetAttributes(attribute.String("remote_url", remoteURL))

	result, err := d.clone(ctx, remoteURL, gitDir, workDir, creds, log)
	outcome := "success"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		kind := "unknown"
		if ge, ok := err.(*giterrors.Error); ok {
			kind = ge.Kind.String()
		}
		d.metrics.fetchErrors.WithLabelValues(kind).Inc()
	}
	d.metrics.fetchDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	log.Info("clone finished", "outcome", outcome, "duration", time.Since(start))
	return result, err
}

func (d *Driver) clone(ctx context.Context, remoteURL, gitDir, workDir string, creds Credentials, log *slog.Logger) (*Result, error) {
	if creds.Username == "" && creds.Password == "" && d.creds != nil {
		if cached, ok, err := d.creds.Get(remoteURL); err == nil && ok {
			creds = Credentials{Username: cached.Username, Password: cached.Password}
		}
	}
	if creds.Username == "" && creds.Password == "" {
		return nil, giterrors.New(giterrors.AuthMissing, "no credentials supplied for "+remoteURL)
	}
	if d.creds != nil {
		_ = d.creds.Put(remoteURL, credstore.Credential{Username: creds.Username, Password: creds.Password, CachedAt: time.Now()})
	}

	refs, err := d.advertiseRefs(ctx, remoteURL, creds, log)
	if err != nil {
		return nil, err
	}
	masterHash, ok := refs[masterRef]
	if !ok {
		return nil, giterrors.New(giterrors.NoMasterBranch, "remote does not advertise "+masterRef)
	}

	objectsDir := filepath.Join(gitDir, "objects")
	store := objstore.Open(objectsDir)
	refsRepo := gitrefs.Open(gitDir)
	if err := refsRepo.WriteHead(masterRef); err != nil {
		return nil, err
	}
	if err := refsRepo.WriteRef(masterRef, masterHash); err != nil {
		return nil, err
	}

	packBody, err := d.uploadPack(ctx, remoteURL, creds, masterHash, log)
	if err != nil {
		return nil, err
	}
	d.metrics.packBytes.Observe(float64(len(packBody)))

	stage, err := d.parsePack(ctx, packBody)
	if err != nil {
		return nil, err
	}
	if err := d.writeUndeltifiedObjects(ctx, store, stage); err != nil {
		return nil, err
	}
	stats, err := d.resolveDeltas(ctx, stage, store)
	if err != nil {
		return nil, err
	}
	d.metrics.deltasApplied.Add(float64(stats.DeltasApplied))

	filesWritten, err := d.checkout(ctx, store, masterHash, workDir)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Hash:          masterHash,
		RefName:       masterRef,
		ObjectCount:   len(stage.Objects),
		DeltaCount:    stats.DeltasApplied,
		PackBytes:     len(packBody),
		CheckoutFiles: filesWritten,
	}

	log.Info("clone pipeline complete",
		"hash", masterHash.String(),
		"objects", result.ObjectCount,
		"deltas", result.DeltaCount,
		"pack_size", humanize.Bytes(uint64(result.PackBytes)),
		"files_written", filesWritten,
	)

	if d.prov != nil {
		if err := d.prov.Append(ctx, provenance.Record{
			RemoteURL: remoteURL, RefName: masterRef, Hash: masterHash.String(),
			FetchedAt: time.Now(), ObjectCount: result.ObjectCount, DeltaCount: result.DeltaCount,
		}); err != nil {
			log.Warn("failed to record fetch provenance", "error", err)
		}
	}

	return result, nil
}

// advertiseRefs implements steps 1–3: GET info/refs, validate framing, and
// parse the advertised ref list.
func (d *Driver) advertiseRefs(ctx context.Context, remoteURL string, creds Credentials, log *slog.Logger) (map[string]githash.Hash, error) {
	ctx, span := tracer().Start(ctx, "fetch.info-refs")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURL+"/info/refs?service=git-upload-pack", nil)
	if err != nil {
		return nil, giterrors.Wrap(giterrors.ProtocolError, "build info/refs request", err)
	}
	req.SetBasicAuth(creds.Username, creds.Password)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, giterrors.Wrap(giterrors.IOError, "GET info/refs", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, giterrors.New(giterrors.AuthMissing, "remote rejected credentials for info/refs")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, giterrors.New(giterrors.ProtocolError, fmt.Sprintf("info/refs returned status %d", resp.StatusCode))
	}

	frames, err := pktline.ReadFrames(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(frames) < 2 {
		return nil, giterrors.New(giterrors.ProtocolError, "info/refs response too short")
	}
	announcement := strings.TrimSuffix(string(frames[0].Payload), "\n")
	if announcement != "# service=git-upload-pack" {
		return nil, giterrors.New(giterrors.ProtocolError, "missing service announcement: got "+announcement)
	}
	if !frames[1].Flush {
		return nil, giterrors.New(giterrors.ProtocolError, "expected flush after service announcement")
	}

	refs := make(map[string]githash.Hash)
	for _, frame := range frames[2:] {
		if frame.Flush {
			continue
		}
		line := strings.TrimSuffix(string(frame.Payload), "\n")
		if nul := strings.IndexByte(line, 0); nul >= 0 {
			line = line[:nul]
		}
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			continue
		}
		h, err := githash.FromHexString(parts[0])
		if err != nil {
			continue
		}
		refs[parts[1]] = h
	}
	log.Debug("advertised refs parsed", "count", len(refs))
	return refs, nil
}

// uploadPack implements steps 5–7: build the want/flush/done request body,
// POST it, and validate the NAK + pack response framing.
func (d *Driver) uploadPack(ctx context.Context, remoteURL string, creds Credentials, want githash.Hash, log *slog.Logger) ([]byte, error) {
	ctx, span := tracer().Start(ctx, "fetch.upload-pack")
	defer span.End()

	var body bytes.Buffer
	body.Write(pktline.EncodeString(fmt.Sprintf("want %s\n", want)))
	body.Write(pktline.Flush())
	body.Write(pktline.EncodeString("done\n"))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, remoteURL+"/git-upload-pack", &body)
	if err != nil {
		return nil, giterrors.Wrap(giterrors.ProtocolError, "build upload-pack request", err)
	}
	req.Header.Set("Content-Type", "application/x-git-upload-pack-request")
	req.SetBasicAuth(creds.Username, creds.Password)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, giterrors.Wrap(giterrors.IOError, "POST git-upload-pack", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, giterrors.New(giterrors.AuthMissing, "remote rejected credentials for upload-pack")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, giterrors.New(giterrors.ProtocolError, fmt.Sprintf("upload-pack returned status %d", resp.StatusCode))
	}

	frames, err := pktline.ReadFrames(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(frames) != 2 {
		return nil, giterrors.New(giterrors.ProtocolError, fmt.Sprintf("expected NAK + pack frames, got %d", len(frames)))
	}
	nak := strings.TrimSuffix(string(frames[0].Payload), "\n")
	if nak != "NAK" {
		return nil, giterrors.New(giterrors.ProtocolError, "expected NAK, got "+nak)
	}
	log.Debug("received packfile", "bytes", len(frames[1].Payload))
	return frames[1].Payload, nil
}

func (d *Driver) parsePack(ctx context.Context, packBody []byte) (*gitpack.Stage, error) {
	_, span := tracer().Start(ctx, "fetch.pack-parse")
	defer span.End()
	return gitpack.Parse(packBody)
}

func (d *Driver) writeUndeltifiedObjects(ctx context.Context, store *objstore.Store, stage *gitpack.Stage) error {
	_, span := tracer().Start(ctx, "fetch.write-objects")
	defer span.End()
	for _, obj := range stage.Objects {
		if _, err := store.Write(obj.Kind, obj.Payload); err != nil {
			return err
		}
		d.metrics.objectsTotal.WithLabelValues(obj.Kind.String()).Inc()
	}
	return nil
}

func (d *Driver) resolveDeltas(ctx context.Context, stage *gitpack.Stage, store *objstore.Store) (deltaresolve.Stats, error) {
	_, span := tracer().Start(ctx, "fetch.delta-resolve")
	defer span.End()
	return deltaresolve.Resolve(stage, store)
}

func (d *Driver) checkout(ctx context.Context, store *objstore.Store, commitHash githash.Hash, workDir string) (int, error) {
	_, span := tracer().Start(ctx, "fetch.checkout")
	defer span.End()

	obj, err := store.Read(commitHash)
	if err != nil {
		return 0, giterrors.Wrap(giterrors.NotFound, "read fetched commit "+commitHash.String(), err)
	}
	if obj.Kind != gitobject.KindCommit {
		return 0, giterrors.New(giterrors.MalformedObject, "fetched hash is not a commit")
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return 0, giterrors.Wrap(giterrors.IOError, "create work tree directory", err)
	}
	return worktree.Checkout(store, obj.Commit.TreeHash, workDir)
}
