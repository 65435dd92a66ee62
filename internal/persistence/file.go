// Package persistence writes archival data to the local filesystem.
package persistence

import (
	"encoding/json"
	"os"
	"path"
	"time"
)

// DataFile describes a file where archival data has been saved.
type DataFile struct {
	// Prefix is the base data directory.
	Prefix string
	// Datatype is the datatype, e.g. "speedtest1".
	Datatype string
	// Subtest identifies the kind of data within the datatype.
	Subtest string
	// UUID is the measurement ID.
	UUID string
	// Path is the full path of the file.
	Path string
	// Size is the number of bytes written.
	Size int
}

// WriteDataFile writes the JSON representation of data to a new file under
// <datadir>/<datatype>/<YYYY>/<MM>/<DD>/. Existing files are never
// overwritten.
func WriteDataFile(datadir, datatype, subtest, uuid string, data interface{}) (*DataFile, error) {
	content, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	timestamp := time.Now()
	dir := path.Join(datadir, datatype, timestamp.Format("2006/01/02"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	filepath := path.Join(dir, datatype+"-"+subtest+"-"+
		timestamp.Format("20060102T150405.000000000Z")+"."+uuid+".json")
	fp, err := os.OpenFile(filepath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, err
	}
	n, err := fp.Write(content)
	if err != nil {
		fp.Close()
		return nil, err
	}
	if err := fp.Close(); err != nil {
		return nil, err
	}
	return &DataFile{
		Prefix:   datadir,
		Datatype: datatype,
		Subtest:  subtest,
		UUID:     uuid,
		Path:     filepath,
		Size:     n,
	}, nil
}
