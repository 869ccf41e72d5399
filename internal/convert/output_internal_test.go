package convert

import "testing"

func TestNumberedName(t *testing.T) {
	cases := map[string]string{
		"archive.zip":    "archive (2).zip",
		"archive.tar.gz": "archive (2).tar.gz",
		"Backup.TAR.ZST": "Backup (2).TAR.ZST",
		"noext":          "noext (2)",
		".tar.gz":        ".tar (2).gz",
	}
	for in, want := range cases {
		if got := numberedName(in, 2); got != want {
			t.Errorf("numberedName(%q) = %q, want %q", in, got, want)
		}
	}
}
