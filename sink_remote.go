package labdaq

// The remote sink forwards a run's completed data file to a remote object
// store. It consumes only the Uploader capability; authentication, token
// refresh, and transport belong to the implementing client (internal/gdrive
// for Google Drive). A remote failure is reported but never fatal to the
// local run, and never touches already-written local files.

// Uploader is the object-store capability set the remote sink consumes.
type Uploader interface {
	// Upload sends the local file to the destination folder and returns the
	// remote file's identifier.
	Upload(localPath, folderID string) (fileID string, err error)
}

// RemoteSink uploads the run's CSV file to a caller-specified destination
// folder after the run finishes. It must be attached to a SinkGroup after the
// CSV sink, so the file is complete when Close runs.
type RemoteSink struct {
	uploader Uploader
	folderID string
}

// NewRemoteSink returns a remote upload sink targeting the given folder.
func NewRemoteSink(uploader Uploader, folderID string) *RemoteSink {
	return &RemoteSink{uploader: uploader, folderID: folderID}
}

// Name implements Sink.
func (s *RemoteSink) Name() string { return "remote" }

// Start verifies the sink is usable before the run produces anything.
func (s *RemoteSink) Start(run *RunInfo) error {
	if s.uploader == nil {
		return sinkErrorf(s.Name(), "start", "no uploader configured")
	}
	if s.folderID == "" {
		return sinkErrorf(s.Name(), "start", "no destination folder configured")
	}
	return nil
}

// Append is a no-op: the remote sink consumes the finished file, not rows.
func (s *RemoteSink) Append(row Row) error { return nil }

// Close uploads the completed CSV file.
func (s *RemoteSink) Close(run *RunInfo) error {
	if s.uploader == nil || s.folderID == "" {
		return nil // Start already reported the misconfiguration
	}
	if run.CSVFilename == "" {
		return sinkErrorf(s.Name(), "close", "run produced no local CSV file to upload")
	}
	fileID, err := s.uploader.Upload(run.CSVFilename, s.folderID)
	if err != nil {
		return &SinkError{Sink: s.Name(), Op: "close", Err: err}
	}
	UpdateLogger.Printf("uploaded %s to remote folder %s as %s", run.CSVFilename, s.folderID, fileID)
	return nil
}
