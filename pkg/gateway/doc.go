/*
Package gateway is the HTTP client for the file gateway, the external
service that stores certificate templates and rendered certificates.

Every request is authenticated with an HMAC signature:

	stringToSign = METHOD "\n" PATH "\n" UNIX_TIMESTAMP
	X-Signature  = hex(HMAC-SHA256(secret_key, stringToSign))

sent alongside X-Access-Key and X-Timestamp. The signed path is always the
bare API path; it never includes a /public prefix even when the effective
download URL does.

# Endpoints

	GET  /files/{uuid}      template bytes (download timeout, default 30s)
	POST /api/v1/files      multipart upload: file, project_id, user_id,
	                        is_public (upload timeout, default 60s)

A successful upload answers with the stored file's record: {id, file_name,
file_size, mime_type, is_public, download_url, created_at}. Some gateway
builds name the id field "file_id"; both spellings are accepted.

Any status of 400 or above is an error. Uploads are never retried: the
gateway is not known to be idempotent and a duplicate certificate upload is
worse than a failed item.

# Usage

	client := gateway.NewClient(gateway.Config{
	    BaseURL:   cfg.GatewayURL,
	    AccessKey: cfg.GatewayAccessKey,
	    SecretKey: cfg.GatewaySecretKey,
	    ProjectID: cfg.GatewayProjectID,
	    DownloadTimeout: cfg.DownloadTimeout,
	    UploadTimeout:   cfg.UploadTimeout,
	})

	tpl, err := client.Download(ctx, templateID)
	res, err := client.Upload(ctx, gateway.UploadRequest{
	    FileName: "CERT-001.pdf",
	    Content:  rendered,
	    UserID:   item.UserID,
	    IsPublic: item.IsPublic,
	})

Ping probes plain HTTP reachability for the readiness endpoint; any HTTP
status counts as alive.
*/
package gateway
