package api

// Provider identifies the backing engine of a data set definition.
type Provider string

const (
	// ProviderBean is a definition backed by an in-process data provider.
	ProviderBean Provider = "BEAN"
	// ProviderCSV is a definition backed by an attached CSV file.
	ProviderCSV Provider = "CSV"
	// ProviderSQL is a definition backed by an external SQL query.
	ProviderSQL Provider = "SQL"
	// ProviderElasticsearch is a definition backed by an Elasticsearch index.
	ProviderElasticsearch Provider = "ELASTICSEARCH"
)

// DataSetDef is the definition document for one data set: where its data
// comes from, how it is refreshed/cached, and, for CSV-backed kinds, where
// the attached CSV payload lives.
type DataSetDef struct {
	// UUID uniquely identifies the definition within a registry.
	UUID string `json:"uuid,omitempty"`
	// Name is the human-readable display name.
	Name string `json:"name,omitempty"`
	// Provider is the kind/type discriminant.
	Provider Provider `json:"provider,omitempty"`

	// Public, when false, hides the data set from lookup clients.
	Public bool `json:"isPublic,omitempty"`

	// Cache / push tuning.
	CacheEnabled bool `json:"cacheEnabled,omitempty"`
	CacheMaxRows int  `json:"cacheMaxRows,omitempty"`
	PushEnabled  bool `json:"pushEnabled,omitempty"`
	PushMaxSize  int  `json:"pushMaxSize,omitempty"`

	// RefreshTime is the refresh expression (e.g. "1h"), blank for none.
	RefreshTime   string `json:"refreshTime,omitempty"`
	RefreshAlways bool   `json:"refreshAlways,omitempty"`

	// CSV provider fields.
	FilePath      string `json:"filePath,omitempty"`
	FileURL       string `json:"fileURL,omitempty"`
	SeparatorChar string `json:"separatorChar,omitempty"`
	QuoteChar     string `json:"quoteChar,omitempty"`
	EscapeChar    string `json:"escapeChar,omitempty"`
	DatePattern   string `json:"datePattern,omitempty"`
	NumberPattern string `json:"numberPattern,omitempty"`

	// SQL provider fields.
	DataSource string `json:"dataSource,omitempty"`
	DBTable    string `json:"dbTable,omitempty"`
	DBSQL      string `json:"dbSQL,omitempty"`

	// StorePath is the definition's location in the versioned store. Set on
	// first save and stable for the definition's lifetime. Never serialized.
	StorePath string `json:"-"`

	// SourcePath is the absolute path of the deployment file this definition
	// was read from, when it arrived through the deployment directory.
	SourcePath string `json:"-"`
}

// IsCSV reports whether the definition carries an attached CSV payload.
func (d *DataSetDef) IsCSV() bool {
	return d.Provider == ProviderCSV
}
