package documents

import (
	"path/filepath"
	"strings"
)

const (
	MimeDocx       = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeGoogleDoc  = "application/vnd.google-apps.document"
	MimePDF        = "application/pdf"
	MimeFolder     = "application/vnd.google-apps.folder"
	ExtDocx        = ".docx"
	ExtPDF         = ".pdf"
	emptyLinkValue = "-"
)

// Artifact is one physical file at some pipeline stage. Name is the local
// path and the identity key within a run. RemoteID and WebLink stay empty
// until the artifact has been uploaded.
type Artifact struct {
	Name           string `json:"name"`
	MimeType       string `json:"mime_type"`
	RemoteID       string `json:"id,omitempty"`
	ParentFolderID string `json:"parent_id,omitempty"`
	WebLink        string `json:"web_view_link,omitempty"`
	// LocalPath is where the bytes live when it differs from Name
	// (converted PDFs are written to a job temp dir).
	LocalPath string `json:"-"`
}

func New(name, mimeType, parentFolderID string) Artifact {
	return Artifact{Name: name, MimeType: mimeType, ParentFolderID: parentFolderID}
}

// Uploaded reports whether the artifact has completed an upload stage.
func (a Artifact) Uploaded() bool { return a.RemoteID != "" }

// WithRemote returns a copy carrying the remote identity.
func (a Artifact) WithRemote(remoteID, webLink string) Artifact {
	a.RemoteID = remoteID
	a.WebLink = webLink
	return a
}

// BaseName is the file name without directories, used as the remote name.
func (a Artifact) BaseName() string { return filepath.Base(a.Name) }

// PDFName replaces the source extension with .pdf.
func (a Artifact) PDFName() string {
	ext := filepath.Ext(a.Name)
	if ext == "" {
		return a.Name + ExtPDF
	}
	return strings.TrimSuffix(a.Name, ext) + ExtPDF
}

// Path is the local file to read when uploading.
func (a Artifact) Path() string {
	if a.LocalPath != "" {
		return a.LocalPath
	}
	return a.Name
}

// AsPDF describes the converted counterpart of a: a new, not yet uploaded
// artifact sharing the logical base name and the parent folder.
func (a Artifact) AsPDF(localPath string) Artifact {
	return Artifact{Name: a.PDFName(), MimeType: MimePDF, ParentFolderID: a.ParentFolderID, LocalPath: localPath}
}

func (a Artifact) String() string {
	link := a.WebLink
	if link == "" {
		link = emptyLinkValue
	}
	return a.Name + ": webViewLink:" + link
}

// Strings renders artifacts the way the status API lists documents.
func Strings(in []Artifact) []string {
	out := make([]string, 0, len(in))
	for _, a := range in {
		out = append(out, a.String())
	}
	return out
}
