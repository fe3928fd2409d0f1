package debrid

import "testing"

func gb(n int64) int64 { return n << 30 }

func TestChooseFilePrefersExactFilenameMatch(t *testing.T) {
	files := []File{
		{ID: 0, Path: "Show.S01E01.720p.mkv", Bytes: gb(1), Link: "l0"},
		{ID: 1, Path: "Show.S01E02.720p.mkv", Bytes: gb(1), Link: "l1"},
		{ID: 2, Path: "Show.S01E03.720p.mkv", Bytes: gb(1), Link: "l2"},
	}

	file, reason := ChooseFile(files, FileTarget{Filename: "Show S01E02 720p.mkv", FileIndex: -1})
	if file == nil || file.ID != 1 {
		t.Fatalf("expected filename match on file 1, got %+v (%s)", file, reason)
	}
}

func TestChooseFileSeasonPackEpisodeMatch(t *testing.T) {
	files := []File{
		{ID: 0, Path: "Season 1/Show.S01E01.mkv", Bytes: gb(1), Link: "l0"},
		{ID: 1, Path: "Season 1/Show.S01E02.mkv", Bytes: gb(1), Link: "l1"},
		{ID: 2, Path: "Season 1/Show.S01E03.mkv", Bytes: gb(1), Link: "l2"},
	}

	file, _ := ChooseFile(files, FileTarget{FileIndex: -1, Season: 1, Episode: 3})
	if file == nil || file.ID != 2 {
		t.Fatalf("expected episode match on file 2, got %+v", file)
	}
}

func TestChooseFileUsesDeclaredIndex(t *testing.T) {
	files := []File{
		{ID: 0, Path: "a.mkv", Bytes: gb(1), Link: "l0"},
		{ID: 1, Path: "b.mkv", Bytes: gb(2), Link: "l1"},
	}

	file, _ := ChooseFile(files, FileTarget{FileIndex: 0})
	if file == nil || file.ID != 0 {
		t.Fatalf("expected declared index to win, got %+v", file)
	}
}

func TestChooseFileFallsBackToLargest(t *testing.T) {
	files := []File{
		{ID: 0, Path: "small.mkv", Bytes: gb(1), Link: "l0"},
		{ID: 1, Path: "large.mkv", Bytes: gb(4), Link: "l1"},
		{ID: 2, Path: "medium.mkv", Bytes: gb(2), Link: "l2"},
	}

	file, reason := ChooseFile(files, FileTarget{FileIndex: -1})
	if file == nil || file.ID != 1 {
		t.Fatalf("expected largest file, got %+v (%s)", file, reason)
	}
}

func TestChooseFileIgnoresJunk(t *testing.T) {
	files := []File{
		{ID: 0, Path: "sample.mkv", Bytes: 10 << 20, Link: "l0"}, // under min size
		{ID: 1, Path: "movie.nfo", Bytes: gb(1), Link: "l1"},     // not a video
		{ID: 2, Path: "subs/movie.srt", Bytes: gb(1), Link: "l2"},
		{ID: 3, Path: "movie.mkv", Bytes: gb(3), Link: "l3"},
	}

	file, _ := ChooseFile(files, FileTarget{FileIndex: -1})
	if file == nil || file.ID != 3 {
		t.Fatalf("expected the real video file, got %+v", file)
	}
}

// No qualifying file is "still caching", not an error: nil result.
func TestChooseFileNothingQualifies(t *testing.T) {
	files := []File{
		{ID: 0, Path: "readme.txt", Bytes: 1 << 10},
	}
	if file, _ := ChooseFile(files, FileTarget{FileIndex: -1}); file != nil {
		t.Fatalf("expected nil when nothing qualifies, got %+v", file)
	}
	if file, _ := ChooseFile(nil, FileTarget{FileIndex: -1}); file != nil {
		t.Fatalf("expected nil for empty file list")
	}
}

func TestChooseFileIndexMustQualify(t *testing.T) {
	files := []File{
		{ID: 0, Path: "sample.txt", Bytes: gb(1), Link: "l0"},
		{ID: 1, Path: "movie.mkv", Bytes: gb(3), Link: "l1"},
	}
	// Index 0 points at a non-video; selection falls through to largest.
	file, _ := ChooseFile(files, FileTarget{FileIndex: 0})
	if file == nil || file.ID != 1 {
		t.Fatalf("non-qualifying declared index should be ignored, got %+v", file)
	}
}
