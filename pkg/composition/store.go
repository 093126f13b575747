package composition

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"videoengine/pkg/sample"
)

// Composition JSON round-tripping needs a persistence layer even though
// no store shape is mandated. Store below persists named projects in a
// bbolt database, using the same bbolt usage as pkg/log's ring buffer.

const projectBucket = "projects"

// snapshot is the JSON-serializable form of a Composition: sources are
// referenced by ID only (the Sample Store is loaded independently by the
// host via LoadSource), tracks/clips/cues are copied in full.
type snapshot struct {
	RenderConfig Config
	Tracks       []trackSnapshot
	Cues         map[string][]SubtitleCue
}

type trackSnapshot struct {
	ID     string
	Kind   TrackKind
	Label  string
	Clips  []Clip
	Muted  bool
	Solo   bool
	Locked bool
}

// Snapshot returns a deep-copyable, JSON-serializable view of c.
func (c *Composition) Snapshot() snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := snapshot{RenderConfig: c.RenderConfig, Cues: map[string][]SubtitleCue{}}
	for k, v := range c.cues {
		out.Cues[k] = append([]SubtitleCue(nil), v...)
	}
	for _, t := range c.tracks {
		ts := trackSnapshot{ID: t.ID, Kind: t.Kind, Label: t.Label, Muted: t.Muted, Solo: t.Solo, Locked: t.Locked}
		for _, clip := range t.Clips {
			ts.Clips = append(ts.Clips, *clip)
		}
		out.Tracks = append(out.Tracks, ts)
	}
	return out
}

// Restore replaces c's tracks and cues with the contents of s. Sources
// referenced by s's clips must already be present in the backing
// sample.Store (typically via LoadSource, run before Restore); a clip
// whose source is missing is dropped and its ID reported.
func (c *Composition) Restore(s snapshot, sources *sample.Store) (droppedClips []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.RenderConfig = s.RenderConfig
	c.tracks = nil
	c.tracksByID = map[string]*Track{}
	c.cues = map[string][]SubtitleCue{}
	for k, v := range s.Cues {
		c.cues[k] = append([]SubtitleCue(nil), v...)
	}

	for _, ts := range s.Tracks {
		t := &Track{ID: ts.ID, Kind: ts.Kind, Label: ts.Label, Muted: ts.Muted, Solo: ts.Solo, Locked: ts.Locked}
		for i := range ts.Clips {
			clip := ts.Clips[i]
			if ts.Kind != KindSubtitle {
				if _, err := sources.Get(clip.SourceID); err != nil {
					droppedClips = append(droppedClips, clip.ID)
					continue
				}
			}
			t.Clips = append(t.Clips, &clip)
		}
		t.sortClips()
		c.tracks = append(c.tracks, t)
		c.tracksByID[t.ID] = t
	}
	return droppedClips
}

// Store persists named composition snapshots to a bbolt database.
type Store struct {
	db *bolt.DB
}

// OpenStore opens (creating if necessary) the project database at path.
func OpenStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open project database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(projectBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create project bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Save persists c's current state under name.
func (s *Store) Save(name string, c *Composition) error {
	data, err := json.Marshal(c.Snapshot())
	if err != nil {
		return fmt.Errorf("marshal project %s: %w", name, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(projectBucket)).Put([]byte(name), data)
	})
}

// Load restores the named project into c, using sources to resolve clip
// source references.
func (s *Store) Load(name string, c *Composition, sources *sample.Store) ([]string, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(projectBucket)).Get([]byte(name))
		if v == nil {
			return fmt.Errorf("project not found: %s", name)
		}
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal project %s: %w", name, err)
	}
	return c.Restore(snap, sources), nil
}

// List returns the names of every persisted project.
func (s *Store) List() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(projectBucket)).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}
