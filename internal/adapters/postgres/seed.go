package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"vigil/internal/domain"
)

// SeedPredefinedSources upserts the built-in source catalog. IDs are derived
// from the source name so repeated seeding is idempotent.
func SeedPredefinedSources(ctx context.Context, db *DB) error {
	for _, d := range predefinedSources {
		d.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("vigil:source:"+d.Name)).String()
		d.Active = true
		if err := db.Upsert(ctx, d); err != nil {
			return fmt.Errorf("seeding source %s: %w", d.Name, err)
		}
	}
	return nil
}

var allIOCTypes = []domain.IOCType{domain.IOCTypeIP, domain.IOCTypeDomain, domain.IOCTypeURL, domain.IOCTypeHash}

var predefinedSources = []domain.SourceDescriptor{
	{
		Name:             "virustotal",
		DisplayName:      "VirusTotal",
		Description:      "File, URL, IP address and domain analysis",
		BaseURL:          "https://www.virustotal.com/api/v3",
		DocumentationURL: "https://developers.virustotal.com/reference",
		SupportedTypes:   allIOCTypes,
		AuthType:         domain.AuthAPIKey,
		Request: domain.RequestConfig{
			Method:           "GET",
			EndpointTemplate: "/{ioc_type}/{ioc_value}",
			Headers:          map[string]string{"x-apikey": "{api_key}"},
		},
		Response: domain.ResponseConfig{
			RiskScorePath: "data.attributes.last_analysis_stats.malicious",
			StatusPath:    "data.attributes.last_analysis_stats",
			DataPath:      "data",
		},
		RateLimit: domain.RateLimit{Limit: 500, Period: "day"},
	},
	{
		Name:             "abuseipdb",
		DisplayName:      "AbuseIPDB",
		Description:      "IP address abuse reports and blacklist checking",
		BaseURL:          "https://api.abuseipdb.com/api/v2",
		DocumentationURL: "https://www.abuseipdb.com/api",
		SupportedTypes:   []domain.IOCType{domain.IOCTypeIP},
		AuthType:         domain.AuthAPIKey,
		Request: domain.RequestConfig{
			Method:           "GET",
			EndpointTemplate: "/check",
			QueryParams:      map[string]string{"ipAddress": "{ioc_value}", "key": "{api_key}"},
		},
		Response: domain.ResponseConfig{
			RiskScorePath: "data.abuseConfidencePercentage",
			StatusPath:    "data.abuseConfidencePercentage",
			DataPath:      "data",
		},
		RateLimit: domain.RateLimit{Limit: 1000, Period: "day"},
	},
	{
		Name:             "otx",
		DisplayName:      "OTX (AlienVault)",
		Description:      "Community-based threat intelligence platform",
		BaseURL:          "https://otx.alienvault.com/api/v1",
		DocumentationURL: "https://otx.alienvault.com/api",
		SupportedTypes:   allIOCTypes,
		AuthType:         domain.AuthAPIKey,
		Request: domain.RequestConfig{
			Method:           "GET",
			EndpointTemplate: "/indicators/{ioc_type}/{ioc_value}/general",
			Headers:          map[string]string{"X-OTX-API-KEY": "{api_key}"},
		},
		Response: domain.ResponseConfig{
			RiskScorePath: "pulse_info.count",
			StatusPath:    "pulse_info.count",
			DataPath:      "pulse_info",
		},
		RateLimit: domain.RateLimit{Limit: 10000, Period: "day"},
	},
	{
		Name:             "nist_nvd",
		DisplayName:      "NIST NVD",
		Description:      "NIST National Vulnerability Database - CVE information",
		BaseURL:          "https://services.nvd.nist.gov/rest/json",
		DocumentationURL: "https://nvd.nist.gov/developers/vulnerabilities",
		SupportedTypes:   []domain.IOCType{domain.IOCTypeCVE},
		AuthType:         domain.AuthNone,
		Request: domain.RequestConfig{
			Method:           "GET",
			EndpointTemplate: "/cves/2.0?cveId={ioc_value}",
		},
		Response: domain.ResponseConfig{
			RiskScorePath: "vulnerabilities[0].cve.metrics.cvssMetricV31[0].cvssData.baseScore",
			StatusPath:    "vulnerabilities[0].cve.metrics",
			DataPath:      "vulnerabilities",
		},
		RateLimit: domain.RateLimit{Limit: 5, Period: "30_seconds"},
	},
	{
		Name:             "urlhaus",
		DisplayName:      "URLhaus (abuse.ch)",
		Description:      "Malware URL database - Free and open source",
		BaseURL:          "https://urlhaus-api.abuse.ch/v1",
		DocumentationURL: "https://urlhaus.abuse.ch/api/",
		SupportedTypes:   []domain.IOCType{domain.IOCTypeURL, domain.IOCTypeDomain},
		AuthType:         domain.AuthNone,
		Request: domain.RequestConfig{
			Method:           "POST",
			EndpointTemplate: "/url/",
			Headers:          map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
			BodyTemplate:     "url={ioc_value}",
		},
		Response: domain.ResponseConfig{
			RiskScorePath: "query_status",
			StatusPath:    "query_status",
			DataPath:      "urlhaus_reference",
		},
		RateLimit: domain.RateLimit{Limit: 1000, Period: "day"},
	},
	{
		Name:             "shodan",
		DisplayName:      "Shodan",
		Description:      "Internet-connected device and service scanning",
		BaseURL:          "https://api.shodan.io",
		DocumentationURL: "https://developer.shodan.io/api",
		SupportedTypes:   []domain.IOCType{domain.IOCTypeIP, domain.IOCTypeDomain},
		AuthType:         domain.AuthAPIKey,
		Request: domain.RequestConfig{
			Method:           "GET",
			EndpointTemplate: "/shodan/host/{ioc_value}",
			QueryParams:      map[string]string{"key": "{api_key}"},
		},
		Response: domain.ResponseConfig{
			RiskScorePath: "vulns",
			StatusPath:    "hostnames",
			DataPath:      "data",
		},
		RateLimit: domain.RateLimit{Limit: 100, Period: "month"},
	},
	{
		Name:             "greynoise",
		DisplayName:      "GreyNoise",
		Description:      "IP reputation and internet-wide scan data",
		BaseURL:          "https://api.greynoise.io/v3",
		DocumentationURL: "https://docs.greynoise.io/reference/get_v3-community-ip",
		SupportedTypes:   []domain.IOCType{domain.IOCTypeIP},
		AuthType:         domain.AuthAPIKey,
		Request: domain.RequestConfig{
			Method:           "GET",
			EndpointTemplate: "/community/{ioc_value}",
			Headers:          map[string]string{"key": "{api_key}"},
		},
		Response: domain.ResponseConfig{
			RiskScorePath: "classification",
			StatusPath:    "noise",
			DataPath:      "riot",
		},
		RateLimit: domain.RateLimit{Limit: 1000, Period: "day"},
	},
	{
		Name:             "hybrid_analysis",
		DisplayName:      "Hybrid Analysis",
		Description:      "Malware analysis sandbox - File hash and URL analysis",
		BaseURL:          "https://www.hybrid-analysis.com/api/v2",
		DocumentationURL: "https://www.hybrid-analysis.com/docs/api/v2",
		SupportedTypes:   []domain.IOCType{domain.IOCTypeHash, domain.IOCTypeURL},
		AuthType:         domain.AuthAPIKey,
		Request: domain.RequestConfig{
			Method:           "GET",
			EndpointTemplate: "/search?query={ioc_value}",
			Headers:          map[string]string{"api-key": "{api_key}"},
		},
		Response: domain.ResponseConfig{
			RiskScorePath: "verdict",
			StatusPath:    "verdict",
			DataPath:      "result",
		},
		RateLimit: domain.RateLimit{Limit: 100, Period: "day"},
	},
	{
		Name:             "phishtank",
		DisplayName:      "PhishTank",
		Description:      "Phishing URL database - Free and open source",
		BaseURL:          "http://checkurl.phishtank.com/checkurl",
		DocumentationURL: "https://www.phishtank.com/api_info.php",
		SupportedTypes:   []domain.IOCType{domain.IOCTypeURL},
		AuthType:         domain.AuthAPIKey,
		Request: domain.RequestConfig{
			Method:           "POST",
			EndpointTemplate: "/",
			Headers:          map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
			BodyTemplate:     "url={ioc_value}&format=json&app_key={api_key}",
		},
		Response: domain.ResponseConfig{
			RiskScorePath: "results.in_database",
			StatusPath:    "results.verified",
			DataPath:      "results",
		},
		RateLimit: domain.RateLimit{Limit: 10000, Period: "day"},
	},
	{
		Name:             "malwarebazaar",
		DisplayName:      "MalwareBazaar (abuse.ch)",
		Description:      "Malware sample database - Free and open source",
		BaseURL:          "https://mb-api.abuse.ch/api/v1",
		DocumentationURL: "https://bazaar.abuse.ch/api/",
		SupportedTypes:   []domain.IOCType{domain.IOCTypeHash},
		AuthType:         domain.AuthNone,
		Request: domain.RequestConfig{
			Method:           "POST",
			EndpointTemplate: "/",
			Headers:          map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
			BodyTemplate:     "query=get_info&hash={ioc_value}",
		},
		Response: domain.ResponseConfig{
			RiskScorePath: "query_status",
			StatusPath:    "query_status",
			DataPath:      "data",
		},
		RateLimit: domain.RateLimit{Limit: 1000, Period: "day"},
	},
	{
		Name:             "threatfox",
		DisplayName:      "ThreatFox (abuse.ch)",
		Description:      "IOC database - Free and open source",
		BaseURL:          "https://threatfox-api.abuse.ch/api/v1",
		DocumentationURL: "https://threatfox.abuse.ch/api/",
		SupportedTypes:   allIOCTypes,
		AuthType:         domain.AuthNone,
		Request: domain.RequestConfig{
			Method:           "POST",
			EndpointTemplate: "/",
			Headers:          map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
			BodyTemplate:     "query=search_ioc&search_term={ioc_value}",
		},
		Response: domain.ResponseConfig{
			RiskScorePath: "query_status",
			StatusPath:    "query_status",
			DataPath:      "data",
		},
		RateLimit: domain.RateLimit{Limit: 1000, Period: "day"},
	},
	{
		Name:             "kaspersky",
		DisplayName:      "Kaspersky Threat Intelligence",
		Description:      "Kaspersky OpenTIP - IP, Domain, URL, and Hash threat intelligence",
		BaseURL:          "https://opentip.kaspersky.com/api/v1",
		DocumentationURL: "https://support.kaspersky.com/opentip/api",
		SupportedTypes:   allIOCTypes,
		AuthType:         domain.AuthAPIKey,
		Request: domain.RequestConfig{
			Method:           "GET",
			EndpointTemplate: "/lookup",
			QueryParams:      map[string]string{"iocType": "{ioc_type}", "iocValue": "{ioc_value}"},
			Headers:          map[string]string{"X-API-KEY": "{api_key}"},
		},
		Response: domain.ResponseConfig{
			RiskScorePath: "Zone",
			StatusPath:    "Zone",
			DataPath:      "Zone",
		},
		RateLimit: domain.RateLimit{Limit: 1000, Period: "day"},
	},
	{
		Name:             "honeydb",
		DisplayName:      "HoneyDB",
		Description:      "HoneyDB - Honeypot threat intelligence and bad host detection",
		BaseURL:          "https://api.honeydb.io",
		DocumentationURL: "https://docs.honeypotdb.com/rest_api/usage/",
		SupportedTypes:   []domain.IOCType{domain.IOCTypeIP, domain.IOCTypeDomain},
		AuthType:         domain.AuthAPIKey,
		Request: domain.RequestConfig{
			Method:           "GET",
			EndpointTemplate: "/api/threats/{ioc_type}/{ioc_value}",
			Headers:          map[string]string{"X-HoneyDB-API-Key": "{api_key}"},
		},
		Response: domain.ResponseConfig{
			RiskScorePath: "threats",
			StatusPath:    "threats",
			DataPath:      "threats",
		},
		RateLimit: domain.RateLimit{Limit: 1500, Period: "month"},
	},
	{
		Name:             "pulsedive",
		DisplayName:      "Pulsedive",
		Description:      "Pulsedive - Threat intelligence platform for IP, Domain, URL, and Hash analysis",
		BaseURL:          "https://pulsedive.com/api",
		DocumentationURL: "https://pulsedive.com/api/",
		SupportedTypes:   allIOCTypes,
		AuthType:         domain.AuthAPIKey,
		Request: domain.RequestConfig{
			Method:           "GET",
			EndpointTemplate: "/info.php",
			QueryParams:      map[string]string{"value": "{ioc_value}", "key": "{api_key}"},
		},
		Response: domain.ResponseConfig{
			RiskScorePath: "risk",
			StatusPath:    "risk",
			DataPath:      "data",
		},
		RateLimit: domain.RateLimit{Limit: 1000, Period: "day"},
	},
	{
		Name:             "google_safe_browsing",
		DisplayName:      "Google Safe Browsing",
		Description:      "Google Safe Browsing API - URL threat detection and malware/phishing protection",
		BaseURL:          "https://safebrowsing.googleapis.com/v4",
		DocumentationURL: "https://developers.google.com/safe-browsing/v4",
		SupportedTypes:   []domain.IOCType{domain.IOCTypeURL},
		AuthType:         domain.AuthAPIKey,
		Request: domain.RequestConfig{
			Method:           "POST",
			EndpointTemplate: "/threatMatches:find",
			QueryParams:      map[string]string{"key": "{api_key}"},
			Headers:          map[string]string{"Content-Type": "application/json"},
			BodyObject: map[string]any{
				"client": map[string]any{
					"clientId":      "vigil",
					"clientVersion": "1.0",
				},
				"threatInfo": map[string]any{
					"threatTypes":      []any{"MALWARE", "SOCIAL_ENGINEERING", "UNWANTED_SOFTWARE", "POTENTIALLY_HARMFUL_APPLICATION"},
					"platformTypes":    []any{"ANY_PLATFORM"},
					"threatEntryTypes": []any{"URL"},
					"threatEntries": []any{
						map[string]any{"url": "{ioc_value}"},
					},
				},
			},
		},
		Response: domain.ResponseConfig{
			RiskScorePath: "matches",
			StatusPath:    "matches",
			DataPath:      "matches",
		},
		RateLimit: domain.RateLimit{Limit: 10000, Period: "day"},
	},
}
