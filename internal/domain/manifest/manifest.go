package manifest

// Descriptor is the part of a manifest that identifies an app. Both Manifest
// and UpdateManifest implement it.
type Descriptor interface {
	Name() string
	B2GFeatures() (*B2GFeatures, bool)
}

// B2GFeatures carries platform specific metadata, including the developer
// attribution of the app.
type B2GFeatures struct {
	role          string
	developer     *Value
	permissions   *Value
	defaultLocale string
	locales       *Value
	version       string
	origin        string
	core          bool
}

// featuresDoc is the wire shape of the b2g_features block
type featuresDoc struct {
	Role          string `json:"role,omitempty"`
	Developer     *Value `json:"developer,omitempty"`
	Permissions   *Value `json:"permissions,omitempty"`
	DefaultLocale string `json:"default_locale,omitempty"`
	Locales       *Value `json:"locales,omitempty"`
	Version       string `json:"version,omitempty"`
	Origin        string `json:"origin,omitempty"`
	Core          bool   `json:"core,omitempty"`
}

func newFeatures(doc *featuresDoc) *B2GFeatures {
	if doc == nil {
		return nil
	}
	return &B2GFeatures{
		role:          doc.Role,
		developer:     doc.Developer,
		permissions:   doc.Permissions,
		defaultLocale: doc.DefaultLocale,
		locales:       doc.Locales,
		version:       doc.Version,
		origin:        doc.Origin,
		core:          doc.Core,
	}
}

func (f *B2GFeatures) doc() *featuresDoc {
	if f == nil {
		return nil
	}
	return &featuresDoc{
		Role:          f.role,
		Developer:     f.developer,
		Permissions:   f.permissions,
		DefaultLocale: f.defaultLocale,
		Locales:       f.locales,
		Version:       f.version,
		Origin:        f.origin,
		Core:          f.core,
	}
}

// Developer returns the developer attribution. A JSON null developer is
// reported as absent; an empty object is present.
func (f *B2GFeatures) Developer() (Value, bool) {
	if f == nil || f.developer == nil {
		return Value{}, false
	}
	return *f.developer, true
}

// Permissions returns the requested permission set
func (f *B2GFeatures) Permissions() (Value, bool) {
	if f == nil || f.permissions == nil {
		return Value{}, false
	}
	return *f.permissions, true
}

// Locales returns the localized metadata block
func (f *B2GFeatures) Locales() (Value, bool) {
	if f == nil || f.locales == nil {
		return Value{}, false
	}
	return *f.locales, true
}

func (f *B2GFeatures) Role() string          { return f.role }
func (f *B2GFeatures) DefaultLocale() string { return f.defaultLocale }
func (f *B2GFeatures) Version() string       { return f.version }
func (f *B2GFeatures) Origin() string        { return f.origin }
func (f *B2GFeatures) IsCore() bool          { return f.core }

// Manifest describes an app as currently installed
type Manifest struct {
	name        string
	shortName   string
	startURL    string
	display     string
	scope       string
	lang        string
	themeColor  string
	icons       *Value
	b2gFeatures *B2GFeatures
}

// manifestDoc is the wire shape of a webmanifest
type manifestDoc struct {
	Name        string       `json:"name"`
	ShortName   string       `json:"short_name,omitempty"`
	StartURL    string       `json:"start_url,omitempty"`
	Display     string       `json:"display,omitempty"`
	Scope       string       `json:"scope,omitempty"`
	Lang        string       `json:"lang,omitempty"`
	ThemeColor  string       `json:"theme_color,omitempty"`
	Icons       *Value       `json:"icons,omitempty"`
	B2GFeatures *featuresDoc `json:"b2g_features,omitempty"`
}

func newManifest(doc *manifestDoc) *Manifest {
	startURL := doc.StartURL
	if startURL == "" {
		startURL = "/"
	}
	return &Manifest{
		name:        doc.Name,
		shortName:   doc.ShortName,
		startURL:    startURL,
		display:     doc.Display,
		scope:       doc.Scope,
		lang:        doc.Lang,
		themeColor:  doc.ThemeColor,
		icons:       doc.Icons,
		b2gFeatures: newFeatures(doc.B2GFeatures),
	}
}

func (m *Manifest) doc() *manifestDoc {
	return &manifestDoc{
		Name:        m.name,
		ShortName:   m.shortName,
		StartURL:    m.startURL,
		Display:     m.display,
		Scope:       m.scope,
		Lang:        m.lang,
		ThemeColor:  m.themeColor,
		Icons:       m.icons,
		B2GFeatures: m.b2gFeatures.doc(),
	}
}

func (m *Manifest) Name() string       { return m.name }
func (m *Manifest) ShortName() string  { return m.shortName }
func (m *Manifest) StartURL() string   { return m.startURL }
func (m *Manifest) Display() string    { return m.display }
func (m *Manifest) Scope() string      { return m.scope }
func (m *Manifest) Lang() string       { return m.lang }
func (m *Manifest) ThemeColor() string { return m.themeColor }

// Icons returns the raw icons member
func (m *Manifest) Icons() (Value, bool) {
	if m.icons == nil {
		return Value{}, false
	}
	return *m.icons, true
}

// B2GFeatures returns the b2g_features block when present
func (m *Manifest) B2GFeatures() (*B2GFeatures, bool) {
	return m.b2gFeatures, m.b2gFeatures != nil
}

// UpdateManifest describes a candidate version published by a remote source
type UpdateManifest struct {
	name         string
	version      string
	packagePath  string
	packagedSize uint64
	size         uint64
	appType      string
	packageHash  string
	dependencies map[string]string
	b2gFeatures  *B2GFeatures
}

// updateDoc is the wire shape of an update webmanifest
type updateDoc struct {
	Name         string            `json:"name"`
	Version      string            `json:"version,omitempty"`
	PackagePath  string            `json:"package_path,omitempty"`
	PackagedSize uint64            `json:"packaged_size,omitempty"`
	Size         uint64            `json:"size,omitempty"`
	Type         string            `json:"type,omitempty"`
	PackageHash  string            `json:"package_hash,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
	B2GFeatures  *featuresDoc      `json:"b2g_features,omitempty"`
}

func newUpdateManifest(doc *updateDoc) *UpdateManifest {
	deps := make(map[string]string, len(doc.Dependencies))
	for k, v := range doc.Dependencies {
		deps[k] = v
	}
	return &UpdateManifest{
		name:         doc.Name,
		version:      doc.Version,
		packagePath:  doc.PackagePath,
		packagedSize: doc.PackagedSize,
		size:         doc.Size,
		appType:      doc.Type,
		packageHash:  doc.PackageHash,
		dependencies: deps,
		b2gFeatures:  newFeatures(doc.B2GFeatures),
	}
}

func (u *UpdateManifest) doc() *updateDoc {
	return &updateDoc{
		Name:         u.name,
		Version:      u.version,
		PackagePath:  u.packagePath,
		PackagedSize: u.packagedSize,
		Size:         u.size,
		Type:         u.appType,
		PackageHash:  u.packageHash,
		Dependencies: u.Dependencies(),
		B2GFeatures:  u.b2gFeatures.doc(),
	}
}

func (u *UpdateManifest) Name() string         { return u.name }
func (u *UpdateManifest) Version() string      { return u.version }
func (u *UpdateManifest) PackagePath() string  { return u.packagePath }
func (u *UpdateManifest) PackagedSize() uint64 { return u.packagedSize }
func (u *UpdateManifest) Size() uint64         { return u.size }
func (u *UpdateManifest) Type() string         { return u.appType }

// PackageHash returns the expected package digest ("sha256:<hex>"), if published
func (u *UpdateManifest) PackageHash() string { return u.packageHash }

// Dependencies returns a copy of the package_name -> version map
func (u *UpdateManifest) Dependencies() map[string]string {
	deps := make(map[string]string, len(u.dependencies))
	for k, v := range u.dependencies {
		deps[k] = v
	}
	return deps
}

// B2GFeatures returns the b2g_features block when present
func (u *UpdateManifest) B2GFeatures() (*B2GFeatures, bool) {
	return u.b2gFeatures, u.b2gFeatures != nil
}
