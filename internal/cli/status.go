package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hyperjump/ruiji/internal/storage"
	"github.com/spf13/cobra"
)

// statusConfigResponse holds configuration info returned by status.
type statusConfigResponse struct {
	Backend          string `json:"backend"`
	Driver           string `json:"driver,omitempty"`
	DataPath         string `json:"data_path,omitempty"`
	KeywordIndexPath string `json:"keyword_index_path,omitempty"`
	ModelPath        string `json:"model_path,omitempty"`
}

// statusResponse is the shape of the GET /api/v1/status response.
type statusResponse struct {
	Records        int                   `json:"records"`
	Dimension      int                   `json:"dimension"`
	IDsIndexed     *uint64               `json:"ids_indexed,omitempty"`
	DiskUsageBytes *int64                `json:"disk_usage_bytes,omitempty"`
	Config         *statusConfigResponse `json:"config,omitempty"`
}

func newStatusCommand(opts *globalOptions) *cobra.Command {
	var serverURL string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show store and index status",
		Long: `Show the record count, dimension, backend and disk usage. With --server the running
server is asked instead of opening the store directly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := opts.format()
			if err != nil {
				return err
			}
			var status *statusResponse
			if serverURL != "" {
				status, err = statusViaHTTP(serverURL)
			} else {
				status, err = opts.localStatus(cmd)
			}
			if err != nil {
				return err
			}
			if format == OutputJSON {
				return writeJSON(cmd.OutOrStdout(), status)
			}
			writeStatusText(cmd.OutOrStdout(), status)
			return nil
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "server URL, e.g. http://localhost:8080 (default: open the store directly)")
	return cmd
}

func (o *globalOptions) localStatus(cmd *cobra.Command) (*statusResponse, error) {
	cfg, _, logger, err := o.setup(false)
	if err != nil {
		return nil, err
	}
	defer logger.Sync()
	ctx := cmd.Context()
	components, err := initializeComponents(ctx, cfg, logger, needs{})
	if err != nil {
		return nil, err
	}
	defer components.Close()

	count, err := components.Store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}
	st := cfg.Storage
	dataPath := st.DatabasePath
	if st.Backend == string(storage.BackendMemory) {
		dataPath = st.SnapshotPath
	}
	status := &statusResponse{
		Records:   count,
		Dimension: components.Store.Dimension(),
		Config: &statusConfigResponse{
			Backend:          st.Backend,
			Driver:           st.Driver,
			DataPath:         dataPath,
			KeywordIndexPath: st.KeywordIndexPath,
			ModelPath:        cfg.Embedding.ModelPath,
		},
	}
	if diskBytes, err := storage.DiskUsageBytes(dataPath, st.KeywordIndexPath); err == nil {
		status.DiskUsageBytes = &diskBytes
	}
	return status, nil
}

func writeStatusText(w io.Writer, status *statusResponse) {
	fmt.Fprintf(w, "records:            %d   # stored vectors\n", status.Records)
	fmt.Fprintf(w, "dimension:          %d   # vector length\n", status.Dimension)
	if status.IDsIndexed != nil {
		fmt.Fprintf(w, "ids_indexed:        %d   # ids searchable by lookup\n", *status.IDsIndexed)
	}
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # store + id index on disk\n", *status.DiskUsageBytes)
	}
	if status.Config == nil {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "# configuration")
	fmt.Fprintf(w, "backend:            %s\n", status.Config.Backend)
	if status.Config.Driver != "" {
		fmt.Fprintf(w, "driver:             %s\n", status.Config.Driver)
	}
	if status.Config.DataPath != "" {
		fmt.Fprintf(w, "data_path:          %s\n", status.Config.DataPath)
	}
	if status.Config.KeywordIndexPath != "" {
		fmt.Fprintf(w, "keyword_index_path: %s\n", status.Config.KeywordIndexPath)
	}
	if status.Config.ModelPath != "" {
		fmt.Fprintf(w, "model_path:         %s\n", status.Config.ModelPath)
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}
