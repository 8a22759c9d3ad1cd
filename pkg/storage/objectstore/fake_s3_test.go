package objectstore

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/daybook-backend/pkg/config"
)

const metaHeaderPrefix = "X-Amz-Meta-"

type fakeObject struct {
	data         []byte
	contentType  string
	meta         http.Header
	lastModified time.Time
}

type fakeUpload struct {
	key         string
	contentType string
	meta        http.Header
	parts       map[int][]byte
}

// fakeS3 serves the path-style subset of the S3 API the store uses:
// bucket head/create, multipart upload, object head/get, multi-delete and
// ListObjectsV2.
type fakeS3 struct {
	mu       sync.Mutex
	bucket   string
	created  bool
	objects  map[string]*fakeObject
	uploads  map[string]*fakeUpload
	nextID   int
	now      time.Time
	failKeys map[string]bool
}

func newFakeS3(bucket string) *fakeS3 {
	return &fakeS3{
		bucket:   bucket,
		objects:  map[string]*fakeObject{},
		uploads:  map[string]*fakeUpload{},
		now:      time.Now().UTC(),
		failKeys: map[string]bool{},
	}
}

func (f *fakeS3) setNow(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t.UTC()
}

func (f *fakeS3) hasBucket() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

// refuse makes multi-delete report key as not deleted.
func (f *fakeS3) refuse(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failKeys[key] = true
}

func (f *fakeS3) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.objects))
	for k := range f.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	q := r.URL.Query()
	if bucket != f.bucket {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch {
	case key == "" && r.Method == http.MethodHead:
		if !f.created {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case key == "" && r.Method == http.MethodPut:
		f.created = true
		w.WriteHeader(http.StatusOK)
	case key == "" && r.Method == http.MethodPost && q.Has("delete"):
		f.deleteObjects(w, r)
	case key == "" && r.Method == http.MethodGet && q.Get("list-type") == "2":
		f.listObjects(w, q.Get("prefix"), q.Get("start-after"))
	case r.Method == http.MethodPost && q.Has("uploads"):
		f.nextID++
		id := "upload-" + strconv.Itoa(f.nextID)
		f.uploads[id] = &fakeUpload{key: key, contentType: r.Header.Get("Content-Type"), meta: userMeta(r.Header), parts: map[int][]byte{}}
		writeXML(w, struct {
			XMLName  xml.Name `xml:"InitiateMultipartUploadResult"`
			Bucket   string
			Key      string
			UploadID string `xml:"UploadId"`
		}{Bucket: bucket, Key: key, UploadID: id})
	case r.Method == http.MethodPut && q.Has("uploadId"):
		up, ok := f.uploads[q.Get("uploadId")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		n, _ := strconv.Atoi(q.Get("partNumber"))
		body, _ := io.ReadAll(r.Body)
		up.parts[n] = body
		w.Header().Set("ETag", fmt.Sprintf(`"part-%d"`, n))
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPost && q.Has("uploadId"):
		f.completeUpload(w, bucket, q.Get("uploadId"))
	case r.Method == http.MethodDelete && q.Has("uploadId"):
		delete(f.uploads, q.Get("uploadId"))
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodHead || r.Method == http.MethodGet:
		obj, ok := f.objects[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		for k, v := range obj.meta {
			w.Header()[k] = v
		}
		w.Header().Set("Content-Type", obj.contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(obj.data)))
		w.Header().Set("Last-Modified", obj.lastModified.Format(http.TimeFormat))
		w.Header().Set("ETag", `"object"`)
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(obj.data)
		}
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func (f *fakeS3) completeUpload(w http.ResponseWriter, bucket, uploadID string) {
	up, ok := f.uploads[uploadID]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	numbers := make([]int, 0, len(up.parts))
	for n := range up.parts {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	var data bytes.Buffer
	for _, n := range numbers {
		data.Write(up.parts[n])
	}
	f.objects[up.key] = &fakeObject{data: data.Bytes(), contentType: up.contentType, meta: up.meta, lastModified: f.now}
	delete(f.uploads, uploadID)

	writeXML(w, struct {
		XMLName  xml.Name `xml:"CompleteMultipartUploadResult"`
		Location string
		Bucket   string
		Key      string
		ETag     string
	}{Location: "/" + bucket + "/" + up.key, Bucket: bucket, Key: up.key, ETag: `"object"`})
}

func (f *fakeS3) deleteObjects(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Objects []struct {
			Key string
		} `xml:"Object"`
	}
	if err := xml.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	type entry struct {
		Key     string
		Code    string `xml:",omitempty"`
		Message string `xml:",omitempty"`
	}
	var res struct {
		XMLName xml.Name `xml:"DeleteResult"`
		Deleted []entry  `xml:"Deleted"`
		Errors  []entry  `xml:"Error"`
	}
	for _, obj := range req.Objects {
		if f.failKeys[obj.Key] {
			res.Errors = append(res.Errors, entry{Key: obj.Key, Code: "AccessDenied", Message: "denied"})
			continue
		}
		delete(f.objects, obj.Key)
		res.Deleted = append(res.Deleted, entry{Key: obj.Key})
	}
	writeXML(w, res)
}

func (f *fakeS3) listObjects(w http.ResponseWriter, prefix, startAfter string) {
	type content struct {
		Key          string
		LastModified string
		ETag         string
		Size         int
		StorageClass string
	}
	res := struct {
		XMLName     xml.Name `xml:"ListBucketResult"`
		Name        string
		Prefix      string
		KeyCount    int
		MaxKeys     int
		IsTruncated bool
		Contents    []content
	}{Name: f.bucket, Prefix: prefix, MaxKeys: 1000}

	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) && k > startAfter {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		obj := f.objects[k]
		res.Contents = append(res.Contents, content{
			Key:          k,
			LastModified: obj.lastModified.Format("2006-01-02T15:04:05.000Z"),
			ETag:         `"object"`,
			Size:         len(obj.data),
			StorageClass: "STANDARD",
		})
	}
	res.KeyCount = len(res.Contents)
	writeXML(w, res)
}

func userMeta(h http.Header) http.Header {
	out := http.Header{}
	for k, v := range h {
		if strings.HasPrefix(k, metaHeaderPrefix) {
			out[k] = v
		}
	}
	return out
}

func writeXML(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, xml.Header)
	_ = xml.NewEncoder(w).Encode(v)
}

// newFakeStore starts a fake S3 endpoint and connects an anonymous store to it.
func newFakeStore(t *testing.T) (*Store, *fakeS3) {
	t.Helper()
	fake := newFakeS3("daybook-audio")
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	store, err := New(t.Context(), config.S3Config{
		Endpoint: strings.TrimPrefix(srv.URL, "http://"),
		Bucket:   fake.bucket,
		Region:   "us-east-1",
	}, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store, fake
}
