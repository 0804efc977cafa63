/*
Copyright © 2018 the K-AGB authors.
This file is part of K-AGB.

K-AGB is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

K-AGB is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with K-AGB.  If not, see <http://www.gnu.org/licenses/>.
*/

package kagbutil

import (
	"context"
	"io"
	"io/ioutil"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/go-cloud/blob"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/kagb"
)

// uploader stages output files that are destined for blob storage in a
// local temporary directory and uploads them once they are complete.
type uploader struct {
	// files is a set of file path pairs. The first of each pair
	// is a local file path and the second is a blob storage
	// path where it should be uploaded to.
	files [][2]string
	err   error
	dir   string
}

// maybeUpload checks whether the given output file path refers to
// a blob storage location. If it does, then a temporary file location
// is returned. The file will then be uploaded to blob storage when
// the uploadOutput method is run.
func (u *uploader) maybeUpload(path string) string {
	if u.err != nil {
		return ""
	}
	if !IsBlob(path) {
		return path
	}
	if u.dir == "" {
		u.dir, u.err = ioutil.TempDir("", "kagb")
		if u.err != nil {
			return ""
		}
	}
	files := expandShp(path)
	for _, f := range files {
		u.files = append(u.files, [2]string{
			filepath.Join(u.dir, filepath.Base(f)),
			f,
		})
	}
	return filepath.Join(u.dir, filepath.Base(files[0]))
}

// uploadOutput uploads the staged files and removes them from the list
// of pending uploads.
func (u *uploader) uploadOutput(ctx context.Context, log logrus.FieldLogger) error {
	if u.err != nil {
		return kagb.Errorf(kagb.IOError, "upload", "preparing upload: %v", u.err)
	}
	for _, files := range u.files {
		if _, err := os.Stat(files[0]); os.IsNotExist(err) {
			// Optional shapefile component that was not written.
			continue
		}
		err := retry(ctx, log, func() error { return uploadFile(ctx, files[0], files[1]) })
		if err != nil {
			return kagb.Errorf(kagb.IOError, "upload", "uploading '%s' to '%s': %v", files[0], files[1], err)
		}
		log.WithField("file", files[1]).Info("uploaded output file")
	}
	u.files = nil
	return nil
}

func uploadFile(ctx context.Context, local, remote string) error {
	r, err := os.Open(local)
	if err != nil {
		return err
	}
	defer r.Close()
	loc, err := url.Parse(remote)
	if err != nil {
		return err
	}
	bucket, err := OpenBucket(ctx, loc.Scheme+"://"+loc.Host)
	if err != nil {
		return err
	}
	w, err := bucket.NewWriter(ctx, strings.TrimPrefix(loc.Path, "/"), &blob.WriterOptions{})
	if err != nil {
		return err
	}
	if _, err = io.Copy(w, r); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
