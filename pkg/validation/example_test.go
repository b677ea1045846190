package validation_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/picatz/jose/v2/pkg/jwa"
	"github.com/picatz/jose/v2/pkg/jws"
	"github.com/picatz/jose/v2/pkg/keys"
	"github.com/picatz/jose/v2/pkg/validation"
)

func Example() {
	key, err := keys.New([]byte("0123456789abcdef0123456789abcdef"), keys.WithID("hmac-1"))
	if err != nil {
		log.Fatal(err)
	}

	registry := jwa.MustNewRegistry()

	token, err := jws.NewCodec(registry).Encode(
		[]byte(`{"iss":"https://issuer.example","aud":"api","sub":"alice"}`),
		jws.SigningCredentials{Key: key, Algorithm: jwa.HS256},
	)
	if err != nil {
		log.Fatal(err)
	}

	pipeline, err := validation.New(registry, keys.MustNewSet(key),
		validation.WithValidators(
			validation.Algorithms(jwa.NewAllowedAlgorithms(jwa.HS256)),
			validation.Issuer("https://issuer.example"),
			validation.Audience("api"),
			validation.Lifetime(time.Minute),
		),
		validation.WithIdentityProjector(func(payload []byte, _ map[string]any, naming validation.NamingConventions) (any, error) {
			return fmt.Sprintf("%s identity from %s", naming.AuthenticationType, payload), nil
		}),
	)
	if err != nil {
		log.Fatal(err)
	}

	result := pipeline.Validate(context.Background(), token)
	if !result.Valid() {
		log.Fatal(result.Err())
	}

	claims, _ := result.Token().Claims()
	fmt.Println("subject:", claims.Subject)
	fmt.Println("key:", result.Key().ID)

	identity, _ := result.Identity()
	fmt.Println(identity)

	result = pipeline.Validate(context.Background(), token+"x")
	fmt.Println("valid:", result.Valid())
	// Output:
	// subject: alice
	// key: hmac-1
	// JWT identity from {"iss":"https://issuer.example","aud":"api","sub":"alice"}
	// valid: false
}
