package drive

import "time"

// FolderMimeType is the Drive MIME type marking a file as a folder.
const FolderMimeType = "application/vnd.google-apps.folder"

// Folder is a handle to a Drive folder.
type Folder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// File is a handle to a Drive file. Size is transmitted as a decimal string
// by the API and is absent for folders.
type File struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size,string,omitempty"`
	MimeType    string    `json:"mimeType"`
	MD5Checksum string    `json:"md5Checksum,omitempty"`
	CreatedTime time.Time `json:"createdTime,omitempty"`
}

// fileList is one page of a files.list response.
type fileList struct {
	Files         []File `json:"files"`
	NextPageToken string `json:"nextPageToken"`
}
