package entity

import "strings"

// Domain represents a registered domain name.
//
// Natural key: domain
//
// Example:
//
//	domain := entity.Domain{
//	    Domain:    "example.com",
//	    Registrar: "GoDaddy",
//	}
type Domain struct {
	// Domain is the domain name (e.g., "example.com").
	// This is the defining field.
	Domain string `json:"domain"`

	// Registrar is the domain registrar (optional).
	Registrar string `json:"registrar,omitempty"`

	// CreatedAt is the registration date (optional).
	CreatedAt string `json:"created_at,omitempty"`

	// ExpiresAt is the expiration date (optional).
	ExpiresAt string `json:"expires_at,omitempty"`

	// Nameservers is the list of nameservers for this domain (optional).
	Nameservers []string `json:"nameservers,omitempty"`
}

// Kind returns the canonical kind name for domains.
func (d Domain) Kind() string { return KindDomain }

// NaturalKey returns the properties that uniquely identify this domain.
func (d Domain) NaturalKey() map[string]any {
	return map[string]any{"domain": d.Domain}
}

// Label returns the domain name.
func (d Domain) Label() string { return d.Domain }

// Properties returns all properties to set on the domain node.
func (d Domain) Properties() map[string]any {
	props := map[string]any{"domain": d.Domain}

	if d.Registrar != "" {
		props["registrar"] = d.Registrar
	}
	if d.CreatedAt != "" {
		props["created_at"] = d.CreatedAt
	}
	if d.ExpiresAt != "" {
		props["expires_at"] = d.ExpiresAt
	}
	if len(d.Nameservers) > 0 {
		props["nameservers"] = d.Nameservers
	}

	return props
}

// Ip represents an IPv4 or IPv6 address.
//
// Natural key: address
type Ip struct {
	// Address is the IP address string (e.g., "8.8.8.8").
	// This is the defining field.
	Address string `json:"address"`

	// ASN is the autonomous system number (optional).
	ASN string `json:"asn,omitempty"`

	// Country is the geolocated country code (optional).
	Country string `json:"country,omitempty"`

	// City is the geolocated city (optional).
	City string `json:"city,omitempty"`

	// Hostname is the reverse-DNS hostname (optional).
	Hostname string `json:"hostname,omitempty"`
}

// Kind returns the canonical kind name for IP addresses.
func (i Ip) Kind() string { return KindIp }

// NaturalKey returns the properties that uniquely identify this address.
func (i Ip) NaturalKey() map[string]any {
	return map[string]any{"address": i.Address}
}

// Label returns the raw address.
func (i Ip) Label() string { return i.Address }

// Properties returns all properties to set on the ip node.
func (i Ip) Properties() map[string]any {
	props := map[string]any{"address": i.Address}

	if i.ASN != "" {
		props["asn"] = i.ASN
	}
	if i.Country != "" {
		props["country"] = i.Country
	}
	if i.City != "" {
		props["city"] = i.City
	}
	if i.Hostname != "" {
		props["hostname"] = i.Hostname
	}

	return props
}

// Email represents an email address.
//
// Natural key: email
type Email struct {
	// Email is the full address (e.g., "alice@example.com").
	// This is the defining field.
	Email string `json:"email"`

	// Provider is the mailbox provider, when known (optional).
	Provider string `json:"provider,omitempty"`

	// Disposable reports whether the address belongs to a known
	// throwaway-mailbox service (optional).
	Disposable bool `json:"disposable,omitempty"`
}

// Kind returns the canonical kind name for email addresses.
func (e Email) Kind() string { return KindEmail }

// NaturalKey returns the properties that uniquely identify this address.
func (e Email) NaturalKey() map[string]any {
	return map[string]any{"email": e.Email}
}

// Label returns the address.
func (e Email) Label() string { return e.Email }

// Properties returns all properties to set on the email node.
func (e Email) Properties() map[string]any {
	props := map[string]any{"email": e.Email}

	if e.Provider != "" {
		props["provider"] = e.Provider
	}
	if e.Disposable {
		props["disposable"] = true
	}

	return props
}

// DomainPart returns the domain portion of the address, or "" if the
// address has no "@".
func (e Email) DomainPart() string {
	at := strings.LastIndex(e.Email, "@")
	if at < 0 || at == len(e.Email)-1 {
		return ""
	}
	return e.Email[at+1:]
}

// Username represents an account handle on one or more platforms.
//
// Natural key: username
type Username struct {
	// Username is the handle (e.g., "toto123").
	// This is the defining field.
	Username string `json:"username"`

	// Platform is the service the handle was observed on (optional).
	Platform string `json:"platform,omitempty"`

	// ProfileURL is the profile page, when known (optional).
	ProfileURL string `json:"profile_url,omitempty"`
}

// Kind returns the canonical kind name for usernames.
func (u Username) Kind() string { return KindUsername }

// NaturalKey returns the properties that uniquely identify this handle.
func (u Username) NaturalKey() map[string]any {
	return map[string]any{"username": u.Username}
}

// Label returns the handle.
func (u Username) Label() string { return u.Username }

// Properties returns all properties to set on the username node.
func (u Username) Properties() map[string]any {
	props := map[string]any{"username": u.Username}

	if u.Platform != "" {
		props["platform"] = u.Platform
	}
	if u.ProfileURL != "" {
		props["profile_url"] = u.ProfileURL
	}

	return props
}

// Individual represents a natural person.
//
// Natural key: first_name, last_name
type Individual struct {
	// FirstName is the given name. This is a defining field.
	FirstName string `json:"first_name"`

	// LastName is the family name. This is a defining field.
	LastName string `json:"last_name"`

	// BirthDate is the date of birth, when known (optional).
	BirthDate string `json:"birth_date,omitempty"`

	// Nationality is the nationality, when known (optional).
	Nationality string `json:"nationality,omitempty"`
}

// Kind returns the canonical kind name for individuals.
func (p Individual) Kind() string { return KindIndividual }

// NaturalKey returns the properties that uniquely identify this person.
func (p Individual) NaturalKey() map[string]any {
	return map[string]any{
		"first_name": p.FirstName,
		"last_name":  p.LastName,
	}
}

// Label returns "{first_name} {last_name}".
func (p Individual) Label() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Properties returns all properties to set on the individual node.
func (p Individual) Properties() map[string]any {
	props := map[string]any{
		"first_name": p.FirstName,
		"last_name":  p.LastName,
	}

	if p.BirthDate != "" {
		props["birth_date"] = p.BirthDate
	}
	if p.Nationality != "" {
		props["nationality"] = p.Nationality
	}

	return props
}

// Organization represents a company or other legal entity.
//
// Natural key: name
type Organization struct {
	// Name is the organization name. This is the defining field.
	Name string `json:"name"`

	// Country is the country of registration (optional).
	Country string `json:"country,omitempty"`

	// Website is the primary website (optional).
	Website string `json:"website,omitempty"`

	// Industry is the sector the organization operates in (optional).
	Industry string `json:"industry,omitempty"`
}

// Kind returns the canonical kind name for organizations.
func (o Organization) Kind() string { return KindOrganization }

// NaturalKey returns the properties that uniquely identify this organization.
func (o Organization) NaturalKey() map[string]any {
	return map[string]any{"name": o.Name}
}

// Label returns the organization name.
func (o Organization) Label() string { return o.Name }

// Properties returns all properties to set on the organization node.
func (o Organization) Properties() map[string]any {
	props := map[string]any{"name": o.Name}

	if o.Country != "" {
		props["country"] = o.Country
	}
	if o.Website != "" {
		props["website"] = o.Website
	}
	if o.Industry != "" {
		props["industry"] = o.Industry
	}

	return props
}

// Phone represents a phone number.
//
// Natural key: number
type Phone struct {
	// Number is the phone number in E.164 or local form.
	// This is the defining field.
	Number string `json:"number"`

	// Country is the country the number is registered in (optional).
	Country string `json:"country,omitempty"`

	// Carrier is the operator, when known (optional).
	Carrier string `json:"carrier,omitempty"`
}

// Kind returns the canonical kind name for phone numbers.
func (p Phone) Kind() string { return KindPhone }

// NaturalKey returns the properties that uniquely identify this number.
func (p Phone) NaturalKey() map[string]any {
	return map[string]any{"number": p.Number}
}

// Label returns the number.
func (p Phone) Label() string { return p.Number }

// Properties returns all properties to set on the phone node.
func (p Phone) Properties() map[string]any {
	props := map[string]any{"number": p.Number}

	if p.Country != "" {
		props["country"] = p.Country
	}
	if p.Carrier != "" {
		props["carrier"] = p.Carrier
	}

	return props
}

// Url represents a web resource.
//
// Natural key: url
type Url struct {
	// URL is the full address. This is the defining field.
	URL string `json:"url"`

	// Title is the page title, when fetched (optional).
	Title string `json:"title,omitempty"`

	// StatusCode is the last observed HTTP status (optional).
	StatusCode int `json:"status_code,omitempty"`
}

// Kind returns the canonical kind name for URLs.
func (u Url) Kind() string { return KindUrl }

// NaturalKey returns the properties that uniquely identify this resource.
func (u Url) NaturalKey() map[string]any {
	return map[string]any{"url": u.URL}
}

// Label returns the address.
func (u Url) Label() string { return u.URL }

// Properties returns all properties to set on the url node.
func (u Url) Properties() map[string]any {
	props := map[string]any{"url": u.URL}

	if u.Title != "" {
		props["title"] = u.Title
	}
	if u.StatusCode != 0 {
		props["status_code"] = u.StatusCode
	}

	return props
}
