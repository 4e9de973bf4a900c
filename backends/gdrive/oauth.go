package gdrive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// OAuth builds an authenticated Google Drive v3 service from a client
// credentials file and a previously saved token file. Pass the result
// to New() to build an interf.Backend.
//
// If successful, the Google Drive service will be returned.
func OAuth(clientCredFile, tokenFile string, readonly bool) (*drive.Service, error) {
	scope := drive.DriveScope
	if readonly {
		scope = drive.DriveReadonlyScope
	}

	oAuthConf, err := loadOAuthConf(clientCredFile, scope)
	if err != nil {
		logrus.WithError(err).Error("gdrive: can't load oauth config")
		return nil, err
	}

	tok, err := loadToken(tokenFile)
	if err != nil {
		logrus.WithError(err).Warn("gdrive: no valid token file, requesting a new one")
		tok, err = reqNewToken(tokenFile, oAuthConf)
		if err != nil {
			return nil, err
		}
	}

	ctx := context.Background()
	service, err := drive.NewService(ctx, option.WithTokenSource(oAuthConf.TokenSource(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("gdrive/OAuth: %w", err)
	}
	return service, nil
}

//--------  HELPER  --------------------------------------------------------------------------------------------------//

func loadOAuthConf(file, scope string) (*oauth2.Config, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("gdrive/loadOAuthConf: %w", err)
	}
	oAuthConf, err := google.ConfigFromJSON(b, scope)
	if err != nil {
		return nil, fmt.Errorf("gdrive/loadOAuthConf: %w", err)
	}
	return oAuthConf, nil
}

func loadToken(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("gdrive/loadToken: %w", err)
	}
	defer f.Close()

	tok := new(oauth2.Token)
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("gdrive/loadToken: %w", err)
	}
	return tok, nil
}

// reqNewToken asks the user to authorize the app interactively and
// persists the resulting token to file.
func reqNewToken(file string, oAuthConf *oauth2.Config) (*oauth2.Token, error) {
	var authCode string
	authURL := oAuthConf.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Printf("\nFollow the link and authorize access, then paste the code here: %v\n\nAuthorization code: ", authURL)
	_, _ = fmt.Scan(&authCode)

	tok, err := oAuthConf.Exchange(context.TODO(), authCode)
	if err != nil {
		return nil, fmt.Errorf("gdrive/reqNewToken: %w", err)
	}

	f, err := os.OpenFile(file, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("gdrive/reqNewToken: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return nil, fmt.Errorf("gdrive/reqNewToken: %w", err)
	}
	return tok, nil
}
